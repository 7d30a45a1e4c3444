package daemon

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/b0ase/clawminer/internal/identity"
	"github.com/b0ase/clawminer/internal/store"
	"github.com/b0ase/clawminer/pkg/config"
)

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "clawminer.db"), filepath.Join(dir, "content"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := &config.Config{}
	cfg.DataDirPath = dir

	d := New(cfg)
	d.st = st
	return d
}

func TestResolveWalletPrefersConfiguredWIF(t *testing.T) {
	d := newTestDaemon(t)
	w, err := identity.Generate()
	require.NoError(t, err)
	d.cfg.Wallet.Key = w.WIF

	addr := d.resolveWallet()
	require.Equal(t, w.Address, addr)
	require.Equal(t, w.Address, d.WalletStatus().Address)
}

func TestResolveWalletAddressOverrideWinsOverWIF(t *testing.T) {
	d := newTestDaemon(t)
	w, err := identity.Generate()
	require.NoError(t, err)
	d.cfg.Wallet.Key = w.WIF
	d.cfg.Wallet.Address = "1OverrideAddressXXXXXXXXXXXXXXXXXX"

	addr := d.resolveWallet()
	require.Equal(t, "1OverrideAddressXXXXXXXXXXXXXXXXXX", addr)
}

func TestResolveWalletFallsBackToPersistedThenGenerated(t *testing.T) {
	d := newTestDaemon(t)

	addr1 := d.resolveWallet()
	require.NotEmpty(t, addr1)

	savedWIF, err := d.ExportWIF()
	require.NoError(t, err)

	// Simulate a restart with no wallet configured: the persisted WIF from
	// the prior run must be picked back up, yielding the same address.
	d2 := newTestDaemon(t)
	d2.st = d.st
	addr2 := d2.resolveWallet()
	require.Equal(t, addr1, addr2)

	savedWIF2, err := d2.ExportWIF()
	require.NoError(t, err)
	require.Equal(t, savedWIF, savedWIF2)
}

func TestImportWalletPersistsAndReplacesActiveWallet(t *testing.T) {
	d := newTestDaemon(t)
	d.resolveWallet()

	w, err := identity.Generate()
	require.NoError(t, err)

	require.NoError(t, d.ImportWallet(w.WIF))
	require.Equal(t, w.Address, d.WalletStatus().Address)

	saved, ok, err := d.st.GetConfigValue("wallet_wif")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, w.WIF, saved)
}

func TestGenerateNewWalletReturnsFreshAddress(t *testing.T) {
	d := newTestDaemon(t)
	first := d.resolveWallet()

	second, err := d.GenerateNewWallet()
	require.NoError(t, err)
	require.NotEqual(t, first, second)
	require.Equal(t, second, d.WalletStatus().Address)
}

func TestEventBusDeliversToSubscribersAndDropsAfterUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	ch, unsubscribe := bus.Subscribe()
	require.Equal(t, 1, bus.SubscriberCount())

	bus.Publish(Event{Type: "test-event"})
	received := <-ch
	require.Equal(t, "test-event", received.Type)

	unsubscribe()
	require.Equal(t, 0, bus.SubscriberCount())
	bus.Publish(Event{Type: "after-unsubscribe"})
}

func TestEventBusNeverBlocksOnSlowSubscriber(t *testing.T) {
	bus := NewEventBus()
	_, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	for i := 0; i < eventSubscriberBuffer+10; i++ {
		bus.Publish(Event{Type: "flood"})
	}
}

func TestStopIsSafeWithoutStart(t *testing.T) {
	d := newTestDaemon(t)
	require.NotPanics(t, func() { d.Stop() })
}
