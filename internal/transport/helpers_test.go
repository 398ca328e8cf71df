package transport

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/pmsync/internal/convert"
	"github.com/roach88/pmsync/internal/engine"
	"github.com/roach88/pmsync/internal/pm"
	"github.com/roach88/pmsync/internal/schema"
	"github.com/roach88/pmsync/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegistry() *schema.Registry {
	reg := schema.NewRegistry(convert.NewRegistry())
	reg.MustRegister(
		schema.NewBuilder("Item").
			Value("name", convert.String).
			MustBuild(),
		schema.NewBuilder("Basket").
			Value("label", convert.String).
			ReferenceList("items", "Item").
			MustBuild(),
	)
	return reg
}

func newEngines(t *testing.T) (client, server *engine.Engine) {
	t.Helper()
	var err error
	client, err = engine.New(pm.SideClient, testRegistry(),
		engine.WithLogger(quietLogger()),
		engine.WithIDGenerator(testutil.NewSequenceGenerator("c")))
	require.NoError(t, err)
	server, err = engine.New(pm.SideServer, testRegistry(),
		engine.WithLogger(quietLogger()),
		engine.WithIDGenerator(testutil.NewSequenceGenerator("s")))
	require.NoError(t, err)
	return client, server
}

// recordingApplier keeps what it was given and rejects ids in reject.
type recordingApplier struct {
	reject  map[string]bool
	applied []pm.Command
}

func (r *recordingApplier) Apply(cmd pm.Command) error {
	if r.reject[cmd.ModelID] {
		return pm.NewUnknownModelError(cmd.ModelID)
	}
	r.applied = append(r.applied, cmd)
	return nil
}
