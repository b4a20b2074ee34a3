package search

import (
	"context"
	"fmt"
	"io"

	"github.com/Gobusters/ectologger"
	"github.com/elastic/go-elasticsearch/v8"
)

// Config holds Elasticsearch connection configuration
type Config struct {
	Addresses []string
	Username  string
	Password  string
}

// Client wraps the Elasticsearch client with logging and common operations
type Client struct {
	es     *elasticsearch.Client
	logger ectologger.Logger
}

// NewClient creates a new Elasticsearch client
func NewClient(cfg Config, logger ectologger.Logger) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	return &Client{
		es:     es,
		logger: logger,
	}, nil
}

// ES returns the underlying client for advanced operations
func (c *Client) ES() *elasticsearch.Client {
	return c.es
}

// Ping checks if the cluster is reachable
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return err
	}
	defer drain(res.Body)

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping returned %s", res.Status())
	}
	return nil
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
