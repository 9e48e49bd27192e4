package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/gophblog/internal/dbx"
	"github.com/dmitrijs2005/gophblog/internal/server/repositories/media"
	"github.com/dmitrijs2005/gophblog/internal/server/repositories/posts"
	"github.com/dmitrijs2005/gophblog/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/gophblog/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to either a *sql.DB or a
// *sql.Tx, so services can run several of them in one transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	Posts(db dbx.DBTX) posts.Repository
	Media(db dbx.DBTX) media.Repository
}
