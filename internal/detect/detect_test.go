package detect

import (
	"math/rand"
	"reflect"
	"strconv"
	"testing"
	"time"

	"authwatch/internal/model"
)

var base = time.Date(2024, 5, 14, 9, 0, 0, 0, time.UTC)

func testParams() Params {
	return Params{
		IPThreshold:   5,
		IPWindow:      2 * time.Minute,
		UserThreshold: 5,
		UserWindow:    10 * time.Minute,
	}
}

func newDetectorForTest(t *testing.T) *Detector {
	t.Helper()
	d, err := New(testParams(), nil)
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	return d
}

func failure(ts time.Time, user, addr string) model.Event {
	return model.Event{
		Timestamp:  ts,
		EventCode:  4625,
		EventType:  model.EventFailedLogin,
		Username:   user,
		SourceAddr: addr,
		Status:     "Failure",
	}
}

func success(ts time.Time, user, addr string) model.Event {
	return model.Event{
		Timestamp:  ts,
		EventCode:  4624,
		EventType:  model.EventSuccessfulLogin,
		Username:   user,
		SourceAddr: addr,
		Status:     "Success",
	}
}

func TestInvalidParams(t *testing.T) {
	if _, err := New(Params{IPThreshold: 0, IPWindow: time.Minute, UserThreshold: 5, UserWindow: time.Minute}, nil); err == nil {
		t.Fatalf("expected error for zero threshold")
	}
	if _, err := New(Params{IPThreshold: 5, IPWindow: 0, UserThreshold: 5, UserWindow: time.Minute}, nil); err == nil {
		t.Fatalf("expected error for zero window")
	}
}

func TestNormalTrafficNoAlert(t *testing.T) {
	d := newDetectorForTest(t)
	events := []model.Event{
		success(base, "alice", "203.0.113.10"),
		failure(base.Add(1*time.Minute), "alice", "203.0.113.10"),
		success(base.Add(2*time.Minute), "bob", "198.51.100.7"),
		failure(base.Add(3*time.Minute), "bob", "198.51.100.7"),
	}
	alerts := d.Detect(events)
	if len(alerts) != 0 {
		t.Fatalf("expected no alerts, got %d", len(alerts))
	}
}

func TestRapidFailuresRaiseIPAlert(t *testing.T) {
	d := newDetectorForTest(t)
	addr := "203.0.113.50"
	events := make([]model.Event, 0, 5)
	for i := 0; i < 5; i++ {
		events = append(events, failure(base.Add(time.Duration(i)*15*time.Second), "user"+strconv.Itoa(i), addr))
	}
	alerts := d.Detect(events)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	a := alerts[0]
	if a.Axis != model.AxisIP || a.Key != addr {
		t.Fatalf("wrong axis/key: %s %s", a.Axis, a.Key)
	}
	if a.Count != 5 {
		t.Fatalf("count: %d", a.Count)
	}
	if !a.WindowStart.Equal(base) || !a.WindowEnd.Equal(base.Add(60*time.Second)) {
		t.Fatalf("window: %v .. %v", a.WindowStart, a.WindowEnd)
	}
	if len(a.RelatedSources) != 1 || a.RelatedSources[0] != addr {
		t.Fatalf("related sources: %v", a.RelatedSources)
	}
	want := []string{"user0", "user1", "user2", "user3", "user4"}
	if !reflect.DeepEqual(a.RelatedAccounts, want) {
		t.Fatalf("related accounts: %v", a.RelatedAccounts)
	}
}

func TestSpacedFailuresWithUnrelatedSuccess(t *testing.T) {
	d := newDetectorForTest(t)
	addr := "203.0.113.50"
	events := make([]model.Event, 0, 7)
	for i := 0; i < 6; i++ {
		events = append(events, failure(base.Add(time.Duration(i)*20*time.Second), "u"+strconv.Itoa(i), addr))
	}
	events = append(events, success(base.Add(10*time.Minute), "carol", "198.51.100.20"))
	alerts := d.Detect(events)
	if len(alerts) != 1 {
		t.Fatalf("expected exactly 1 alert, got %d", len(alerts))
	}
	a := alerts[0]
	if a.Axis != model.AxisIP || a.Key != addr {
		t.Fatalf("wrong axis/key: %s %s", a.Axis, a.Key)
	}
	if a.Count < 5 {
		t.Fatalf("count below threshold: %d", a.Count)
	}
}

func TestAccountSprayRaisesUsernameAlert(t *testing.T) {
	d := newDetectorForTest(t)
	events := make([]model.Event, 0, 5)
	for i := 0; i < 5; i++ {
		// One failure per address; only the username axis accumulates.
		events = append(events, failure(base.Add(time.Duration(i)*90*time.Second), "svc-backup", "198.51.100."+strconv.Itoa(10+i)))
	}
	alerts := d.Detect(events)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	a := alerts[0]
	if a.Axis != model.AxisUsername || a.Key != "svc-backup" {
		t.Fatalf("wrong axis/key: %s %s", a.Axis, a.Key)
	}
	if len(a.RelatedSources) != 5 || a.RelatedSources[0] != "198.51.100.10" {
		t.Fatalf("related sources: %v", a.RelatedSources)
	}
	if len(a.RelatedAccounts) != 1 || a.RelatedAccounts[0] != "svc-backup" {
		t.Fatalf("related accounts: %v", a.RelatedAccounts)
	}
}

func TestBelowThresholdNoAlert(t *testing.T) {
	d := newDetectorForTest(t)
	events := make([]model.Event, 0, 4)
	for i := 0; i < 4; i++ {
		events = append(events, failure(base.Add(time.Duration(i)*time.Second), "admin", "203.0.113.50"))
	}
	if alerts := d.Detect(events); len(alerts) != 0 {
		t.Fatalf("expected no alerts, got %d", len(alerts))
	}
}

func TestWindowBoundaryInclusive(t *testing.T) {
	d := newDetectorForTest(t)
	// Five failures spanning exactly the ip window. The span comparison is
	// strict, so a spread equal to the window still counts.
	events := make([]model.Event, 0, 5)
	for i := 0; i < 5; i++ {
		events = append(events, failure(base.Add(time.Duration(i)*30*time.Second), "u"+strconv.Itoa(i), "203.0.113.50"))
	}
	alerts := d.Detect(events)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert at exact window span, got %d", len(alerts))
	}

	// One second beyond the window and the run no longer fits.
	events[4].Timestamp = base.Add(2*time.Minute + time.Second)
	alerts = d.Detect(events)
	if len(alerts) != 0 {
		t.Fatalf("expected no alert beyond window, got %d", len(alerts))
	}
}

func TestIdenticalTimestampsSameWindow(t *testing.T) {
	d := newDetectorForTest(t)
	events := make([]model.Event, 0, 5)
	for i := 0; i < 5; i++ {
		events = append(events, failure(base, "u"+strconv.Itoa(i), "203.0.113.50"))
	}
	alerts := d.Detect(events)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert for simultaneous failures, got %d", len(alerts))
	}
	a := alerts[0]
	if a.Count != 5 {
		t.Fatalf("count: %d", a.Count)
	}
	if !a.WindowStart.Equal(base) || !a.WindowEnd.Equal(base) {
		t.Fatalf("window: %v .. %v", a.WindowStart, a.WindowEnd)
	}
	if len(a.RelatedAccounts) != 5 {
		t.Fatalf("related accounts: %v", a.RelatedAccounts)
	}
}

func TestBurstConsumedOnce(t *testing.T) {
	d := newDetectorForTest(t)
	// Eight rapid failures: the first five trigger and are consumed, the
	// remaining three stay below threshold.
	events := make([]model.Event, 0, 8)
	for i := 0; i < 8; i++ {
		events = append(events, failure(base.Add(time.Duration(i)*5*time.Second), "u"+strconv.Itoa(i), "203.0.113.50"))
	}
	alerts := d.Detect(events)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert for one burst, got %d", len(alerts))
	}
	if alerts[0].Count != 5 {
		t.Fatalf("count: %d", alerts[0].Count)
	}
}

func TestTwoFullRunsTwoAlerts(t *testing.T) {
	d := newDetectorForTest(t)
	events := make([]model.Event, 0, 10)
	for i := 0; i < 10; i++ {
		events = append(events, failure(base.Add(time.Duration(i)*5*time.Second), "u"+strconv.Itoa(i), "203.0.113.50"))
	}
	alerts := d.Detect(events)
	if len(alerts) != 2 {
		t.Fatalf("expected 2 alerts for two consumed runs, got %d", len(alerts))
	}
	if alerts[0].WindowEnd.After(alerts[1].WindowStart) {
		t.Fatalf("windows overlap: %v .. %v", alerts[0].WindowEnd, alerts[1].WindowStart)
	}
}

func TestRelatedValuesScopedToWindow(t *testing.T) {
	d := newDetectorForTest(t)
	addr := "203.0.113.50"
	events := []model.Event{
		failure(base, "early1", addr),
		failure(base.Add(10*time.Second), "early2", addr),
	}
	late := base.Add(10 * time.Minute)
	for i := 0; i < 5; i++ {
		events = append(events, failure(late.Add(time.Duration(i)*10*time.Second), "late"+strconv.Itoa(i), addr))
	}
	alerts := d.Detect(events)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	a := alerts[0]
	want := []string{"late0", "late1", "late2", "late3", "late4"}
	if !reflect.DeepEqual(a.RelatedAccounts, want) {
		t.Fatalf("related accounts include out-of-window users: %v", a.RelatedAccounts)
	}
}

func TestZeroTimestampExcluded(t *testing.T) {
	d := newDetectorForTest(t)
	events := make([]model.Event, 0, 5)
	for i := 0; i < 4; i++ {
		events = append(events, failure(base.Add(time.Duration(i)*time.Second), "admin", "203.0.113.50"))
	}
	noTS := failure(time.Time{}, "admin", "203.0.113.50")
	events = append(events, noTS)
	if alerts := d.Detect(events); len(alerts) != 0 {
		t.Fatalf("event without timestamp must not count toward a window")
	}
}

func TestDetectOrderInsensitive(t *testing.T) {
	d := newDetectorForTest(t)
	events := make([]model.Event, 0, 12)
	for i := 0; i < 6; i++ {
		events = append(events, failure(base.Add(time.Duration(i)*10*time.Second), "admin", "203.0.113.50"))
		events = append(events, failure(base.Add(time.Duration(i)*45*time.Second), "root", "198.51.100.9"))
	}
	want := d.Detect(events)

	shuffled := append([]model.Event(nil), events...)
	rng := rand.New(rand.NewSource(7))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	got := d.Detect(shuffled)
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("alerts differ under input reordering:\n%v\n%v", want, got)
	}
}

func TestDetectRerunIdempotent(t *testing.T) {
	d := newDetectorForTest(t)
	events := make([]model.Event, 0, 6)
	for i := 0; i < 6; i++ {
		events = append(events, failure(base.Add(time.Duration(i)*10*time.Second), "admin", "203.0.113.50"))
	}
	first := d.Detect(events)
	second := d.Detect(events)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("rerun produced different alerts")
	}
}

func TestEmptyInput(t *testing.T) {
	d := newDetectorForTest(t)
	alerts := d.Detect(nil)
	if alerts == nil || len(alerts) != 0 {
		t.Fatalf("expected empty alert slice, got %v", alerts)
	}
}
