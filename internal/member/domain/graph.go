package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/uplink/internal/sponsorgraph"
	"gorm.io/gorm"
)

type graphLookup struct {
	db   *gorm.DB
	repo Repository
}

// GraphLookup exposes members as sponsor graph nodes read through db.
func GraphLookup(db *gorm.DB, repo Repository) sponsorgraph.Lookup {
	return &graphLookup{db: db, repo: repo}
}

func (l *graphLookup) Node(ctx context.Context, id snowflake.ID) (*sponsorgraph.Node, error) {
	m, err := l.repo.FindByID(ctx, l.db, id)
	if err != nil || m == nil {
		return nil, err
	}
	return &sponsorgraph.Node{
		ID:        m.ID,
		SponsorID: m.SponsorID,
		IsAdmin:   m.IsAdmin,
		IsActive:  m.IsActive,
	}, nil
}
