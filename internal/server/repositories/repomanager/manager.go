package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/gophtalk/internal/dbx"
	"github.com/dmitrijs2005/gophtalk/internal/server/repositories/attachments"
	"github.com/dmitrijs2005/gophtalk/internal/server/repositories/audit"
	"github.com/dmitrijs2005/gophtalk/internal/server/repositories/messages"
	"github.com/dmitrijs2005/gophtalk/internal/server/repositories/participants"
	"github.com/dmitrijs2005/gophtalk/internal/server/repositories/rooms"
)

// RepositoryManager vends repositories bound to a DBTX so that services can
// run several of them inside one transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Rooms(db dbx.DBTX) rooms.Repository
	Participants(db dbx.DBTX) participants.Repository
	Messages(db dbx.DBTX) messages.Repository
	Attachments(db dbx.DBTX) attachments.Repository
	Audit(db dbx.DBTX) audit.Repository
}
