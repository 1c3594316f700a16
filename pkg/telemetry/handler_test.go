package telemetry

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/soundprediction/go-biohub/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuckDBHandler_PersistsErrors(t *testing.T) {
	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	defer db.Close()
	// A single connection keeps the in-memory database shared.
	db.SetMaxOpenConns(1)

	var buf bytes.Buffer
	h, err := NewDuckDBHandler(slog.NewTextHandler(&buf, nil), db)
	require.NoError(t, err)
	logger := slog.New(h).With("source", "interpro")

	ctx := context.WithValue(context.Background(), types.ContextKeyRunID, "20170201_10:00")
	ctx = context.WithValue(ctx, types.ContextKeyBotName, "InterproBot_Items")

	logger.InfoContext(ctx, "upload finished")
	logger.ErrorContext(ctx, "write failed", "error", errors.New("boom"), "wdid", "Q42")
	h.Wait()

	assert.Contains(t, buf.String(), "write failed")

	var count int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM execution_errors`).Scan(&count))
	assert.Equal(t, 1, count)

	var msg, runID, bot, source, attrs string
	require.NoError(t, db.QueryRow(`SELECT message, run_id, bot_name, source, CAST(attributes AS VARCHAR) FROM execution_errors`).
		Scan(&msg, &runID, &bot, &source, &attrs))
	assert.Equal(t, "write failed", msg)
	assert.Equal(t, "20170201_10:00", runID)
	assert.Equal(t, "InterproBot_Items", bot)
	assert.Equal(t, "interpro", source)
	assert.JSONEq(t, `{"error":"boom","wdid":"Q42","source":"interpro"}`, attrs)
}
