package supabase

import (
	"fmt"

	"github.com/supabase-community/supabase-go"
	"slide2video/internal/config"
)

type Client struct {
	Supabase *supabase.Client
	Config   *config.Config
}

func NewClient(cfg *config.Config) (*Client, error) {
	client, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	return &Client{
		Supabase: client,
		Config:   cfg,
	}, nil
}

// Insert writes one row through PostgREST.
func (c *Client) Insert(table string, row interface{}) error {
	_, _, err := c.Supabase.From(table).Insert(row, false, "", "minimal", "").Execute()
	if err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}
