package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/stratumhq/stratum/pkg/connector"
	"github.com/stratumhq/stratum/pkg/connector/apiconn"
	"github.com/stratumhq/stratum/pkg/connector/csvconn"
	"github.com/stratumhq/stratum/pkg/connector/mysqlconn"
	"github.com/stratumhq/stratum/pkg/connector/pgconn"
	"github.com/stratumhq/stratum/pkg/executor"
)

// connectionEntry names the connector kind and its DSN/path, keyed in
// the connections file by the same table/path name a MigrationItem's
// SourceName/DestinationName uses.
type connectionEntry struct {
	Kind string `json:"kind"` // mysql | postgres | csv | api
	DSN  string `json:"dsn"`
}

type connectionsFile struct {
	Sources      map[string]connectionEntry `json:"sources"`
	Destinations map[string]connectionEntry `json:"destinations"`
}

func loadConnections(ctx context.Context, path string) (executor.Registry, func(), error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return executor.Registry{}, nil, fmt.Errorf("connections: read %s: %w", path, err)
	}
	var cf connectionsFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return executor.Registry{}, nil, fmt.Errorf("connections: decode %s: %w", path, err)
	}

	reg := executor.Registry{
		Sources:      make(map[string]connector.Source, len(cf.Sources)),
		Destinations: make(map[string]connector.Destination, len(cf.Destinations)),
	}
	var closers []func() error

	for name, entry := range cf.Sources {
		src, closer, err := openSource(ctx, entry)
		if err != nil {
			closeAll(closers)
			return executor.Registry{}, nil, fmt.Errorf("connections: source %q: %w", name, err)
		}
		reg.Sources[name] = src
		closers = append(closers, closer)
	}
	for name, entry := range cf.Destinations {
		dst, closer, err := openDestination(ctx, entry)
		if err != nil {
			closeAll(closers)
			return executor.Registry{}, nil, fmt.Errorf("connections: destination %q: %w", name, err)
		}
		reg.Destinations[name] = dst
		closers = append(closers, closer)
	}

	return reg, func() { closeAll(closers) }, nil
}

func openSource(ctx context.Context, entry connectionEntry) (connector.Source, func() error, error) {
	switch entry.Kind {
	case "mysql":
		conn, err := mysqlconn.Open(ctx, mysqlconn.NewConfig(entry.DSN))
		if err != nil {
			return nil, nil, err
		}
		return conn, conn.Close, nil
	case "postgres":
		conn, err := pgconn.Open(ctx, pgconn.Config{ConnString: entry.DSN})
		if err != nil {
			return nil, nil, err
		}
		return conn, conn.Close, nil
	case "csv":
		src, err := csvconn.OpenSource(entry.DSN)
		if err != nil {
			return nil, nil, err
		}
		return src, src.Close, nil
	case "api":
		src := apiconn.NewSource(apiconn.Config{BaseURL: entry.DSN})
		return src, src.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown source kind %q", entry.Kind)
	}
}

func openDestination(ctx context.Context, entry connectionEntry) (connector.Destination, func() error, error) {
	switch entry.Kind {
	case "mysql":
		conn, err := mysqlconn.Open(ctx, mysqlconn.NewConfig(entry.DSN))
		if err != nil {
			return nil, nil, err
		}
		return conn, conn.Close, nil
	case "postgres":
		conn, err := pgconn.Open(ctx, pgconn.Config{ConnString: entry.DSN})
		if err != nil {
			return nil, nil, err
		}
		return conn, conn.Close, nil
	case "csv":
		dst, err := csvconn.OpenDestination(entry.DSN)
		if err != nil {
			return nil, nil, err
		}
		return dst, dst.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown destination kind %q", entry.Kind)
	}
}

func closeAll(closers []func() error) {
	for _, c := range closers {
		_ = c()
	}
}
