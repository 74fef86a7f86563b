package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJob(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func newTestCatalog(t *testing.T, files map[string]string) *Catalog {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		writeJob(t, dir, name, body)
	}
	c, err := Open(dir)
	require.NoError(t, err)
	return c
}

func TestFilename(t *testing.T) {
	tests := []struct{ title, want string }{
		{"Auxiliar Contable", "auxiliar_contable.txt"},
		{"Reclutador - Cdmx Sur", "reclutador_cdmx_sur.txt"},
		{"  Técnico   de  Mantenimiento ", "tecnico_de_mantenimiento.txt"},
		{"Diseñador__UX", "disenador_ux.txt"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Filename(tt.title), tt.title)
	}
}

func TestTitleFromFilename(t *testing.T) {
	tests := []struct{ name, want string }{
		{"auxiliar_contable.txt", "Auxiliar Contable"},
		{"reclutador_cdmx_sur.txt", "Reclutador - Cdmx Sur"},
		{"ejecutivo_de_ventas_cdmx.txt", "Ejecutivo De Ventas - Cdmx"},
		{"CHOFER.txt", "Chofer"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TitleFromFilename(tt.name), tt.name)
	}
}

func TestOpen_MissingDirIsEmpty(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Equal(t, 0, c.Snapshot().Len())
	assert.Empty(t, c.List())
}

func TestSnapshot_DescriptionRoundTrip(t *testing.T) {
	c := newTestCatalog(t, map[string]string{
		"reclutador_cdmx_sur.txt": "Reclutar personal en zona sur.",
		"auxiliar_contable.txt":   "Registro contable.",
		"notes.md":                "ignored",
	})

	snap := c.Snapshot()
	assert.Equal(t, []string{"Auxiliar Contable", "Reclutador - Cdmx Sur"}, snap.Titles())

	desc, ok := snap.Description("Reclutador - Cdmx Sur")
	require.True(t, ok)
	assert.Equal(t, "Reclutar personal en zona sur.", desc)

	_, ok = snap.Description("Gerente")
	assert.False(t, ok)
}

func TestCRUD(t *testing.T) {
	c := newTestCatalog(t, nil)
	before := c.Snapshot()

	e, err := c.Create("Analista de Crédito", strings.Repeat("a", 250))
	require.NoError(t, err)
	assert.Equal(t, "analista_de_credito.txt", e.Filename)
	assert.Equal(t, "Analista De Credito", e.Title)

	assert.NotSame(t, before, c.Snapshot(), "write swaps the snapshot")
	assert.Equal(t, 0, before.Len(), "old snapshot is unchanged")

	list := c.List()
	require.Len(t, list, 1)
	assert.Equal(t, strings.Repeat("a", PreviewLength)+"...", list[0].Description)

	_, err = c.Create("analista  de credito", "otra")
	assert.ErrorIs(t, err, ErrEntryExists)

	_, err = c.Create("", "x")
	assert.ErrorIs(t, err, ErrInvalidEntry)

	got, err := c.Get(e.Filename)
	require.NoError(t, err)
	assert.Len(t, got.Description, 250)

	_, err = c.Update(e.Filename, "  nueva descripción  ")
	require.NoError(t, err)
	got, err = c.Get(e.Filename)
	require.NoError(t, err)
	assert.Equal(t, "nueva descripción", got.Description)

	_, err = c.Update(e.Filename, "   ")
	assert.ErrorIs(t, err, ErrInvalidEntry)
	_, err = c.Update("missing.txt", "x")
	assert.ErrorIs(t, err, ErrEntryNotFound)

	require.NoError(t, c.Delete(e.Filename))
	assert.ErrorIs(t, c.Delete(e.Filename), ErrEntryNotFound)
	_, err = c.Get(e.Filename)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestRejectsPathTraversal(t *testing.T) {
	c := newTestCatalog(t, nil)
	for _, name := range []string{"../secret.txt", "a/b.txt", ".hidden.txt", "job.md", ""} {
		_, err := c.Get(name)
		assert.ErrorIs(t, err, ErrInvalidEntry, name)
		assert.ErrorIs(t, c.Delete(name), ErrInvalidEntry, name)
	}
}

func TestDetector(t *testing.T) {
	c := newTestCatalog(t, map[string]string{
		"auxiliar.txt":            "a",
		"auxiliar_contable.txt":   "b",
		"reclutador_cdmx_sur.txt": "c",
		"chofer.txt":              "d",
	})
	d := NewDetector(c, nil)

	t.Run("longest match in current message", func(t *testing.T) {
		det := d.Detect("Me interesa la vacante de auxiliar contable", nil)
		assert.Equal(t, "Auxiliar Contable", det.Title)
		assert.True(t, det.WantsDetails)
		assert.False(t, det.FromHistory)
	})

	t.Run("accent and case insensitive", func(t *testing.T) {
		det := d.Detect("RECLUTADOR - CDMX SÚR por favor", nil)
		assert.Equal(t, "Reclutador - Cdmx Sur", det.Title)
		assert.False(t, det.WantsDetails)
	})

	history := []Exchange{
		{User: "quiero chofer", Assistant: "ok"},
		{User: "hola", Assistant: "Tenemos Auxiliar Contable"},
		{User: "mi nombre es Ana", Assistant: "gracias"},
		{User: "ana@example.com", Assistant: "¿teléfono?"},
	}

	t.Run("history scanned newest first within window", func(t *testing.T) {
		det := d.Detect("¿cuál es el sueldo?", history)
		assert.Equal(t, "Auxiliar Contable", det.Title)
		assert.True(t, det.FromHistory)
	})

	t.Run("history outside window ignored", func(t *testing.T) {
		det := d.Detect("¿cuál es el sueldo?", nil)
		assert.False(t, det.Detected())

		older := append([]Exchange{{User: "chofer"}}, make([]Exchange, 3)...)
		det = d.Detect("¿y el horario?", older)
		assert.False(t, det.Detected())
	})

	t.Run("no details keyword skips history", func(t *testing.T) {
		det := d.Detect("gracias", history)
		assert.False(t, det.Detected())
		assert.False(t, det.WantsDetails)
	})
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	c := newTestCatalog(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan error, 8)
	done := make(chan error, 1)
	notify := func(err error) {
		select {
		case reloaded <- err:
		default:
		}
	}
	go func() { done <- c.Watch(ctx, 20*time.Millisecond, notify) }()

	// Give the watcher time to register the directory.
	require.Eventually(t, func() bool {
		writeJob(t, c.Dir(), "guardia.txt", "vigilancia")
		select {
		case err := <-reloaded:
			return err == nil
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"Guardia"}, c.Snapshot().Titles())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}
