package main

import (
	"github.com/humanbelnik/judgement/internal/app"
	"github.com/humanbelnik/judgement/internal/config"
)

func main() {
	app.Go(config.Load())
}
