package netmon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"timebase-node/types"
	"timebase-node/x/clock"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeLink struct {
	up          bool
	connects    int
	disconnects int
	apStarts    int
	apName      string
	apPass      string
	apErr       error
}

func (l *fakeLink) Connect(types.Credentials) error { l.connects++; return nil }
func (l *fakeLink) Disconnect()                     { l.disconnects++; l.up = false }
func (l *fakeLink) StartAP(name, pass string) error {
	l.apStarts++
	l.apName, l.apPass = name, pass
	return l.apErr
}
func (l *fakeLink) Connected() bool { return l.up }
func (l *fakeLink) HardwareAddr() net.HardwareAddr {
	return net.HardwareAddr{0x24, 0x0a, 0xc4, 0x00, 0xbe, 0xef}
}

// fakeSync fails the first failures calls.
type fakeSync struct {
	failures int
	calls    int
}

func (f *fakeSync) Sync(context.Context) error {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("udp timeout")
	}
	return nil
}

type rebootRec struct {
	reasons []string
}

func (r *rebootRec) reboot(reason string) { r.reasons = append(r.reasons, reason) }

var t0 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

type rig struct {
	s    *Supervisor
	link *fakeLink
	sync *fakeSync
	clk  *clock.FakeClock
	rb   *rebootRec
}

func newRig(t *testing.T) *rig {
	t.Helper()
	r := &rig{link: &fakeLink{}, sync: &fakeSync{}, clk: clock.Fake(t0), rb: &rebootRec{}}
	cfg := Config{
		Tick:           time.Second,
		NoWifiBeforeAp: 300 * time.Second,
		ApWait:         120 * time.Second,
		AP:             types.Credentials{Name: "timebase-setup", Secret: "provision-me"},
	}
	r.s = New(r.link, r.sync, types.Credentials{Name: "home", Secret: "pw"}, cfg, r.clk, nil, r.rb.reboot, quiet())
	return r
}

// tick advances the clock by one second and steps the supervisor.
func (r *rig) tick() {
	r.clk.Advance(time.Second)
	r.s.Step(context.Background())
}

func (r *rig) elapsed() time.Duration { return r.clk.Now().Sub(t0) }

func TestLinkDropsAndNeverRecovers(t *testing.T) {
	r := newRig(t)
	r.link.up = true
	r.s.Start()
	r.s.Step(context.Background()) // t=0: associated
	if r.s.State() != types.Connected {
		t.Fatalf("state = %v, want connected", r.s.State())
	}

	r.link.up = false // drops at t=0
	var apAt, rebootAt time.Duration
	for i := 0; i < 1000 && len(r.rb.reasons) == 0; i++ {
		r.tick()
		if apAt == 0 && r.s.State() == types.ApFallback {
			apAt = r.elapsed()
		}
		if apAt == 0 && r.s.State() != types.Disconnected {
			t.Fatalf("t=%v: state = %v, want disconnected", r.elapsed(), r.s.State())
		}
	}
	rebootAt = r.elapsed()

	if apAt <= 300*time.Second || apAt > 301*time.Second {
		t.Fatalf("AP fallback at %v, want just after 300s", apAt)
	}
	if rebootAt-apAt != 120*time.Second {
		t.Fatalf("reboot %v after AP, want 120s", rebootAt-apAt)
	}
	if len(r.rb.reasons) != 1 {
		t.Fatalf("reboots = %d", len(r.rb.reasons))
	}
	if r.link.disconnects != 1 || r.link.apStarts != 1 {
		t.Fatalf("disconnects = %d, apStarts = %d", r.link.disconnects, r.link.apStarts)
	}
	if r.link.apName != "timebase-setup" || r.link.apPass != "provision-me" {
		t.Fatalf("AP params = %q/%q", r.link.apName, r.link.apPass)
	}
	r.tick()
	if len(r.rb.reasons) != 1 {
		t.Fatal("stepped again after reboot")
	}
}

func TestNeverAssociatesEscalatesThroughDisconnected(t *testing.T) {
	r := newRig(t)
	r.s.Start()
	r.tick()
	if r.s.State() != types.Disconnected {
		t.Fatalf("state = %v, want disconnected after first tick", r.s.State())
	}
	for r.s.State() == types.Disconnected {
		r.tick()
	}
	if r.s.State() != types.ApFallback {
		t.Fatalf("state = %v", r.s.State())
	}
	if r.elapsed() <= 300*time.Second {
		t.Fatalf("AP after %v; Connecting start time should count as last alive", r.elapsed())
	}
}

func TestBriefOutageResetsAPTimer(t *testing.T) {
	r := newRig(t)
	r.link.up = true
	r.s.Start()
	r.s.Step(context.Background())

	r.link.up = false
	for i := 0; i < 200; i++ {
		r.tick()
	}
	r.link.up = true
	r.tick()
	if r.s.State() != types.Connected {
		t.Fatalf("state = %v, want connected", r.s.State())
	}
	r.link.up = false
	for i := 0; i < 300; i++ {
		r.tick()
		if r.s.State() == types.ApFallback {
			t.Fatalf("AP fallback after only %d s of the second outage", i+1)
		}
	}
	r.tick()
	if r.s.State() != types.ApFallback {
		t.Fatalf("state = %v, want ap_fallback", r.s.State())
	}
}

func TestTimeSyncRetriesUntilSuccess(t *testing.T) {
	r := newRig(t)
	r.sync.failures = 4
	r.link.up = true
	r.s.Start()
	r.s.Step(context.Background())
	if r.sync.calls != 5 {
		t.Fatalf("sync calls = %d, want 5", r.sync.calls)
	}
	if r.s.State() != types.Connected || !r.s.Connected() {
		t.Fatal("not connected after sync")
	}
}

func TestTimeSyncOncePerTransition(t *testing.T) {
	r := newRig(t)
	r.link.up = true
	r.s.Start()
	for i := 0; i < 10; i++ {
		r.tick()
	}
	if r.sync.calls != 1 {
		t.Fatalf("sync calls = %d while staying connected", r.sync.calls)
	}
	r.link.up = false
	r.tick()
	r.link.up = true
	r.tick()
	if r.sync.calls != 2 {
		t.Fatalf("sync calls = %d after reconnect, want 2", r.sync.calls)
	}
}

func TestAPRetriedWhileWaiting(t *testing.T) {
	r := newRig(t)
	r.link.apErr = errors.New("mode not supported")
	r.s.Start()
	for r.s.State() != types.ApFallback {
		r.tick()
	}
	r.tick()
	r.tick()
	if r.link.apStarts != 3 {
		t.Fatalf("apStarts = %d, want 3", r.link.apStarts)
	}
	for len(r.rb.reasons) == 0 {
		r.tick()
	}
}

func TestHardwareAddrSnapshot(t *testing.T) {
	r := newRig(t)
	if r.s.HardwareAddr() != nil {
		t.Fatal("address known before start")
	}
	r.s.Start()
	if got := r.s.HardwareAddr().String(); got != "24:0a:c4:00:be:ef" {
		t.Fatalf("HardwareAddr = %s", got)
	}
}

func TestRunStopsOnContext(t *testing.T) {
	r := newRig(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.s.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}
