package reload_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpbank/snmp_trapmap/pkg/trapmap/reload"
	"github.com/vpbank/snmp_trapmap/snmp/ber"
	"github.com/vpbank/snmp_trapmap/typemap"
)

const linkDownYAML = `
link-down:
  trap_oid: 1.3.6.1.6.3.1.1.5.3
  fields:
    - name: if_index
      oid: 1.3.6.1.2.1.2.2.1.1
      syntax: integer
`

const linkUpYAML = `
link-up:
  trap_oid: 1.3.6.1.6.3.1.1.5.4
  fields:
    - name: if_index
      oid: 1.3.6.1.2.1.2.2.1.1
      syntax: integer
`

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(dir, name)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestReload_RegistersAndRemoves(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "link-down.yml", linkDownYAML)
	writeFile(t, dir, "link-up.yml", linkUpYAML)

	m := typemap.New()
	r := reload.New(reload.Config{Dir: dir}, m, nil)

	res := r.Reload()
	require.NoError(t, res.Err)
	assert.Equal(t, []typemap.TypeID{"link-down", "link-up"}, res.Registered)
	assert.Equal(t, []typemap.TypeID{"link-down", "link-up"}, m.Types())

	require.NoError(t, os.Remove(filepath.Join(dir, "link-up.yml")))
	res = r.Reload()
	require.NoError(t, res.Err)
	assert.Equal(t, []typemap.TypeID{"link-up"}, res.Removed)
	assert.Equal(t, []typemap.TypeID{"link-down"}, m.Types())
	assert.Equal(t, []typemap.TypeID{"link-down"}, r.Owned())
}

func TestReload_KeepsGoRegisteredTypes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "link-down.yml", linkDownYAML)

	m := typemap.New()
	native := typemap.Describe[struct{}]("native").Trap("1.3.6.1.4.1.9.0.1").MustBuild()
	require.NoError(t, m.Register(native))

	r := reload.New(reload.Config{Dir: dir}, m, nil)
	require.NoError(t, r.Reload().Err)

	require.NoError(t, os.Remove(filepath.Join(dir, "link-down.yml")))
	res := r.Reload()
	require.NoError(t, res.Err)
	assert.Equal(t, []typemap.TypeID{"native"}, m.Types())
}

func TestReload_BrokenDefinitionKeepsLiveMap(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "link-down.yml", linkDownYAML)

	m := typemap.New()
	r := reload.New(reload.Config{Dir: dir}, m, nil)
	require.NoError(t, r.Reload().Err)

	writeFile(t, dir, "link-down.yml", `
link-down:
  trap_oid: 1.3.6.1.6.3.1.1.5.3
  fields:
    - name: if_index
      syntax: integer
`)
	res := r.Reload()
	require.Error(t, res.Err)
	assert.Equal(t, []typemap.TypeID{"link-down"}, m.Types())
}

func TestReload_UnreadableFileKeepsLiveMap(t *testing.T) {
	for name, body := range map[string]string{
		"malformed": "link-down:\n  trap_oid: [unterminated",
		"truncated": "",
	} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, "link-down.yml", linkDownYAML)
			writeFile(t, dir, "link-up.yml", linkUpYAML)

			m := typemap.New()
			r := reload.New(reload.Config{Dir: dir}, m, nil)
			require.NoError(t, r.Reload().Err)

			writeFile(t, dir, "link-up.yml", body)
			res := r.Reload()
			require.Error(t, res.Err)
			assert.Empty(t, res.Removed)
			assert.Equal(t, []typemap.TypeID{"link-down", "link-up"}, m.Types())
			assert.Equal(t, []typemap.TypeID{"link-down", "link-up"}, r.Owned())
			id, ok := m.Lookup(ber.MustParseOID("1.3.6.1.6.3.1.1.5.4"))
			require.True(t, ok)
			assert.Equal(t, typemap.TypeID("link-up"), id)
		})
	}
}

func TestReload_TrapOIDMovesBetweenTypes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yml", linkDownYAML)

	m := typemap.New()
	r := reload.New(reload.Config{Dir: dir}, m, nil)
	require.NoError(t, r.Reload().Err)

	require.NoError(t, os.Remove(filepath.Join(dir, "a.yml")))
	writeFile(t, dir, "b.yml", `
interface-down:
  trap_oid: 1.3.6.1.6.3.1.1.5.3
  fields:
    - name: if_index
      oid: 1.3.6.1.2.1.2.2.1.1
`)
	res := r.Reload()
	require.NoError(t, res.Err)

	id, ok := m.Lookup(ber.MustParseOID("1.3.6.1.6.3.1.1.5.3"))
	require.True(t, ok)
	assert.Equal(t, typemap.TypeID("interface-down"), id)
}

func TestReload_ClashWithGoTypeIsReported(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "link-down.yml", linkDownYAML)
	writeFile(t, dir, "link-up.yml", linkUpYAML)

	m := typemap.New()
	native := typemap.Describe[struct{}]("native").Trap("1.3.6.1.6.3.1.1.5.3").MustBuild()
	require.NoError(t, m.Register(native))

	res := reload.New(reload.Config{Dir: dir}, m, nil).Reload()
	require.Error(t, res.Err)
	assert.Equal(t, []typemap.TypeID{"link-up"}, res.Registered)
	assert.Equal(t, []typemap.TypeID{"link-up", "native"}, m.Types())
}

func TestRun_WatchesDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "link-down.yml", linkDownYAML)

	var mu sync.Mutex
	var results []reload.Result
	m := typemap.New()
	r := reload.New(reload.Config{
		Dir:      dir,
		Debounce: 50 * time.Millisecond,
		OnReload: func(res reload.Result) {
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		},
	}, m, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(results) >= 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []typemap.TypeID{"link-down"}, m.Types())

	// A file in a new subdirectory is picked up too.
	writeFile(t, dir, "vendor/link-up.yml", linkUpYAML)
	require.Eventually(t, func() bool {
		_, ok := m.Lookup(ber.MustParseOID("1.3.6.1.6.3.1.1.5.4"))
		return ok
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(dir, "link-down.yml")))
	require.Eventually(t, func() bool {
		_, ok := m.Lookup(ber.MustParseOID("1.3.6.1.6.3.1.1.5.3"))
		return !ok
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_MissingDirectory(t *testing.T) {
	r := reload.New(reload.Config{Dir: filepath.Join(t.TempDir(), "absent")}, typemap.New(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Run(ctx), context.DeadlineExceeded)
}
