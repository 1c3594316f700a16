package report_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/soundprediction/go-biohub/pkg/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yeastGeneLog = `#{"bot_name": "YeastBot", "run_id": "20161025_11:40", "run_name": "gene", "domain": "gene", "maintainer": "GSS", "release": {"MyGene": {"_id": "MyGene", "release": "2016-10-20T08:05:49.473000"}}}
INFO, 10/25/2016 11:40:24, 856305, CREATE, Q27547288, P351
INFO, 10/25/2016 11:40:30, 856306, UPDATE, Q27547289, P351
INFO, 10/25/2016 11:41:02, 856307, SKIP, Q27547290, P351
ERROR, 10/25/2016 11:42:10, 856308, "missing stop position", , P351
`

const mondoLog = `#{'name': 'MondoBot', 'run_id': '20170301_09:00', 'domain': 'disease', 'maintainer': 'GSS'}
INFO, 03/01/2017 09:00:01, DOID:1386, UPDATE, Q7, P699
`

func writeLog(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func openStore(t *testing.T) *report.Store {
	t.Helper()
	s, err := report.Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.InitialSetup(context.Background()))
	return s
}

func TestInitialSetup(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	// Running it twice is harmless.
	require.NoError(t, s.InitialSetup(ctx))

	bots, err := s.Bots(ctx)
	require.NoError(t, err)
	require.Len(t, bots, 1)
	assert.Equal(t, "YeastBot", bots[0].Name)
	assert.Equal(t, "GSS", bots[0].Maintainer)
	assert.Equal(t, "gstupp@scripps.edu", bots[0].Email)
	assert.Equal(t, []string{"gene", "protein"}, bots[0].Domains)

	_, err = s.Bot(ctx, "MondoBot")
	assert.ErrorIs(t, err, report.ErrNotFound)
}

func TestGetOrCreateBot(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	_, err := s.GetOrCreateBot(ctx, "MondoBot", "")
	assert.Error(t, err)

	b, err := s.GetOrCreateBot(ctx, "MondoBot", "GSS", "disease")
	require.NoError(t, err)
	assert.Equal(t, []string{"disease"}, b.Domains)

	// Existing bots are returned as they are.
	b, err = s.GetOrCreateBot(ctx, "MondoBot", "someone else", "gene")
	require.NoError(t, err)
	assert.Equal(t, "GSS", b.Maintainer)
	assert.Equal(t, []string{"disease"}, b.Domains)
}

func TestGetOrCreateBotRun(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	spec := report.RunSpec{
		Bot: "YeastBot", RunID: "20161025", RunName: "chromosome", Domain: "chromosome",
		Sources: map[string]string{"MyGene": "20161020"},
	}
	id, err := s.GetOrCreateBotRun(ctx, spec)
	require.NoError(t, err)
	again, err := s.GetOrCreateBotRun(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	run, err := s.BotRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"MyGene": "20161020"}, run.Sources)
	assert.Empty(t, run.Actions)
	assert.False(t, run.Started.IsZero())
}

func TestProcessLog(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	dir := t.TempDir()
	path := writeLog(t, dir, "YeastBot_gene-20161025_11:40.log", yeastGeneLog)

	res, err := s.ProcessLog(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "YeastBot", res.Bot)
	assert.Equal(t, 4, res.Entries)

	run, err := s.BotRun(ctx, res.BotRun)
	require.NoError(t, err)
	assert.Equal(t, "gene", run.RunName)
	assert.Equal(t, "GSS", run.Maintainer)
	assert.Equal(t, map[string]int{"CREATE": 1, "UPDATE": 1, "SKIP": 1, "ERROR": 1}, run.Actions)
	assert.Equal(t, map[string]string{"MyGene": "2016-10-20T08:05:49.473000"}, run.Sources)
	assert.Equal(t, "11:40:24", run.Started.Format("15:04:05"))
	assert.Equal(t, "11:42:10", run.Ended.Format("15:04:05"))

	errs, err := s.Logs(ctx, report.LogFilter{Action: "ERROR"})
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "missing stop position", errs[0].Msg)
	assert.Equal(t, "856308", errs[0].ExternalID)
	assert.Equal(t, "P351", errs[0].ExternalIDProp)
	assert.Empty(t, errs[0].WDID)

	byItem, err := s.Logs(ctx, report.LogFilter{WDID: "Q27547289"})
	require.NoError(t, err)
	require.Len(t, byItem, 1)
	assert.Equal(t, "UPDATE", byItem[0].Action)
	assert.Empty(t, byItem[0].Msg)

	// Loading the same file again replaces the rows.
	res, err = s.ProcessLog(ctx, path)
	require.NoError(t, err)
	assert.EqualValues(t, 4, res.Replaced)
	all, err := s.Logs(ctx, report.LogFilter{BotRun: res.BotRun})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	page, err := s.Logs(ctx, report.LogFilter{BotRun: res.BotRun, Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "UPDATE", page[0].Action)
}

func TestProcessLog_UnknownBot(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	path := writeLog(t, t.TempDir(), "MondoBot-20170301_09:00.log", mondoLog)

	_, err := s.ProcessLog(ctx, path)
	assert.ErrorIs(t, err, report.ErrUnknownBot)

	s.AutoRegister = true
	res, err := s.ProcessLog(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "MondoBot", res.Bot)

	b, err := s.Bot(ctx, "MondoBot")
	require.NoError(t, err)
	assert.Equal(t, []string{"disease"}, b.Domains)
}

func TestProcessLogs(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	dir := t.TempDir()
	writeLog(t, dir, "YeastBot_gene-20161025_11:40.log", yeastGeneLog)
	writeLog(t, dir, "MondoBot-20170301_09:00.log", mondoLog)
	writeLog(t, dir, "notes.txt", "not a log")

	done, err := s.ProcessLogs(ctx, dir)
	assert.ErrorIs(t, err, report.ErrUnknownBot)
	require.Len(t, done, 1)
	assert.Equal(t, "YeastBot", done[0].Bot)

	runs, err := s.BotRuns(ctx, "")
	require.NoError(t, err)
	require.Len(t, runs, 1)

	runs, err = s.BotRuns(ctx, "protein")
	require.NoError(t, err)
	assert.Empty(t, runs)
}
