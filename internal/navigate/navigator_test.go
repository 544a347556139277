package navigate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/itchlabs/itch/api/schemas"
	"github.com/itchlabs/itch/internal/browser"
	"github.com/itchlabs/itch/internal/config"
	"github.com/itchlabs/itch/internal/drivertest"
	"github.com/itchlabs/itch/internal/navigate"
)

func testNavigatorConfig() config.NavigatorConfig {
	return config.NavigatorConfig{
		LoadTimeout:     100 * time.Millisecond,
		ActionTimeout:   100 * time.Millisecond,
		ReadySelector:   "body",
		LookupAttempts:  3,
		LookupBaseDelay: time.Millisecond,
	}
}

func newTestNavigator(t *testing.T, drv *drivertest.Driver) (*navigate.Navigator, *browser.Session) {
	t.Helper()
	nav := navigate.New(testNavigatorConfig(), zap.NewNop())
	return nav, browser.NewSession(drv, zap.NewNop(), nil)
}

func TestLoad_Success(t *testing.T) {
	drv := &drivertest.Driver{}
	nav, s := newTestNavigator(t, drv)

	err := nav.Load(context.Background(), s, "https://example.com/item/1", "")
	require.NoError(t, err)

	assert.Equal(t, []string{"https://example.com/item/1"}, drv.NavigatedURLs)
	assert.Equal(t, schemas.Healthy, s.HealthState())
}

// TestLoad_ReadyTimeout verifies that a page whose ready condition never
// appears produces a NavigationTimeout and degrades the session rather than
// killing it: the browser is alive, the page is just slow or broken.
func TestLoad_ReadyTimeout(t *testing.T) {
	drv := &drivertest.Driver{NeverReady: true}
	nav, s := newTestNavigator(t, drv)

	err := nav.Load(context.Background(), s, "https://example.com/slow", "")
	require.Error(t, err)

	var timeout *schemas.NavigationTimeout
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "https://example.com/slow", timeout.URL)
	assert.Equal(t, schemas.Degraded, s.HealthState())
	assert.True(t, schemas.Retryable(err))
}

// TestLoad_HardFailureKillsSession verifies that a driver-level navigation
// failure marks the session dead so the manager replaces it.
func TestLoad_HardFailureKillsSession(t *testing.T) {
	drv := &drivertest.Driver{NavigateErr: errors.New("net::ERR_CONNECTION_REFUSED")}
	nav, s := newTestNavigator(t, drv)

	err := nav.Load(context.Background(), s, "https://example.com", "")
	require.Error(t, err)

	var navErr *schemas.NavigationError
	require.ErrorAs(t, err, &navErr)
	assert.Equal(t, schemas.Dead, s.HealthState())
}

func TestLoad_ParentCancellationWinsOverTimeout(t *testing.T) {
	drv := &drivertest.Driver{NeverReady: true}
	cfg := testNavigatorConfig()
	cfg.LoadTimeout = 10 * time.Second
	nav := navigate.New(cfg, zap.NewNop())
	s := browser.NewSession(drv, zap.NewNop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := nav.Load(ctx, s, "https://example.com", "")
	assert.ErrorIs(t, err, context.Canceled, "run cancellation must not be dressed up as a page timeout")
}

func TestAct_Click(t *testing.T) {
	el := &drivertest.Element{}
	drv := (&drivertest.Driver{}).Add("#load-more", el)
	nav, s := newTestNavigator(t, drv)

	err := nav.Act(context.Background(), s, schemas.Action{Type: schemas.ActionClick, Selector: "#load-more"})
	require.NoError(t, err)
	assert.Equal(t, 1, el.Clicks)
}

func TestAct_TypeText(t *testing.T) {
	el := &drivertest.Element{}
	drv := (&drivertest.Driver{}).Add("input[name=q]", el)
	nav, s := newTestNavigator(t, drv)

	err := nav.Act(context.Background(), s, schemas.Action{
		Type:     schemas.ActionTypeText,
		Selector: "input[name=q]",
		Value:    "science fiction",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"science fiction"}, el.Typed)
}

// TestAct_LookupRetriesAbsorbLateRender verifies the bounded re-lookup: an
// element that only renders on the third poll is still found, with backoff
// between the polls.
func TestAct_LookupRetriesAbsorbLateRender(t *testing.T) {
	el := &drivertest.Element{}
	drv := (&drivertest.Driver{AppearAfter: map[string]int{"#late": 3}}).Add("#late", el)
	nav, s := newTestNavigator(t, drv)

	err := nav.Act(context.Background(), s, schemas.Action{Type: schemas.ActionClick, Selector: "#late"})
	require.NoError(t, err)

	assert.Equal(t, 3, drv.Lookups["#late"])
	assert.Equal(t, 1, el.Clicks)
}

func TestAct_ElementNotFoundAfterAllLookups(t *testing.T) {
	drv := &drivertest.Driver{}
	nav, s := newTestNavigator(t, drv)

	err := nav.Act(context.Background(), s, schemas.Action{Type: schemas.ActionClick, Selector: "#missing"})
	require.Error(t, err)

	var notFound *schemas.ElementNotFound
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "#missing", notFound.Selector)
	assert.Equal(t, 3, drv.Lookups["#missing"], "the lookup is retried to the attempt budget")
}

// TestAct_StaleElementRetriedOnce verifies a single transparent re-resolution
// when the element reference goes stale between lookup and use.
func TestAct_StaleElementRetriedOnce(t *testing.T) {
	el := &drivertest.Element{StaleTimes: 1}
	drv := (&drivertest.Driver{}).Add("#flaky", el)
	nav, s := newTestNavigator(t, drv)

	err := nav.Act(context.Background(), s, schemas.Action{Type: schemas.ActionClick, Selector: "#flaky"})
	require.NoError(t, err)
	assert.Equal(t, 1, el.Clicks)
}

func TestAct_StaleElementTwiceSurfaces(t *testing.T) {
	el := &drivertest.Element{StaleTimes: 2}
	drv := (&drivertest.Driver{}).Add("#hopeless", el)
	nav, s := newTestNavigator(t, drv)

	err := nav.Act(context.Background(), s, schemas.Action{Type: schemas.ActionClick, Selector: "#hopeless"})
	require.Error(t, err)

	var stale *schemas.StaleElementError
	assert.ErrorAs(t, err, &stale, "the second stale failure is not retried again")
}

func TestAct_Scroll(t *testing.T) {
	drv := &drivertest.Driver{}
	nav, s := newTestNavigator(t, drv)

	require.NoError(t, nav.Act(context.Background(), s, schemas.Action{Type: schemas.ActionScroll}))
	require.Len(t, drv.Evaluated, 1)
	assert.Contains(t, drv.Evaluated[0], "scrollTo")
}

func TestAct_Wait(t *testing.T) {
	drv := &drivertest.Driver{}
	nav, s := newTestNavigator(t, drv)

	start := time.Now()
	require.NoError(t, nav.Act(context.Background(), s, schemas.Action{Type: schemas.ActionWait, WaitMs: 20}))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestAct_UnknownType(t *testing.T) {
	drv := &drivertest.Driver{}
	nav, s := newTestNavigator(t, drv)

	err := nav.Act(context.Background(), s, schemas.Action{Type: "hover"})
	var cfgErr *schemas.SchemaConfigError
	assert.ErrorAs(t, err, &cfgErr)
}
