package store

import "basegraph.app/roster/core/db"

type Stores struct {
	conn db.DBTX
}

// NewStores binds stores to a pool or a transaction.
func NewStores(conn db.DBTX) *Stores {
	return &Stores{conn: conn}
}

func (s *Stores) Users() UserStore {
	return newUserStore(s.conn)
}

func (s *Stores) Models() ModelStore {
	return newModelStore(s.conn)
}
