package model

type TxOp int

const (
	TxKeep TxOp = iota
	TxPut
	TxDelete
)

// TxResult is what a transaction function asks the directory to commit.
type TxResult struct {
	Op   TxOp
	Room *Room
}

func Keep() TxResult { return TxResult{Op: TxKeep} }

func Put(room *Room) TxResult { return TxResult{Op: TxPut, Room: room} }

func Delete() TxResult { return TxResult{Op: TxDelete} }

// RoomEvent is one change feed delivery. Room == nil && Err == nil means
// the record is absent.
type RoomEvent struct {
	Room *Room
	Err  error
}

func (e RoomEvent) Absent() bool {
	return e.Room == nil && e.Err == nil
}

// TxFunc computes the write for one attempt of a directory transaction. It
// may run several times and must not mutate current.
type TxFunc func(current *Room) (TxResult, error)

// Subscription is a live change feed for one room code.
type Subscription interface {
	Events() <-chan RoomEvent
	Close()
}
