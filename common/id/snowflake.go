package id

import (
	"errors"
	"sync"

	"github.com/bwmarrin/snowflake"
)

// ErrNotInitialized is returned by Next when Init has not been called.
var ErrNotInitialized = errors.New("id generator not initialized")

var (
	node *snowflake.Node
	once sync.Once
)

// Init initializes the Snowflake node. Each process that writes rows must use
// a distinct node ID (server=1, worker=2, rosterctl=3).
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New generates a new time-ordered int64 ID. It panics if Init was not called.
func New() int64 {
	return node.Generate().Int64()
}

// Next is New without the panic.
func Next() (int64, error) {
	if node == nil {
		return 0, ErrNotInitialized
	}
	return node.Generate().Int64(), nil
}
