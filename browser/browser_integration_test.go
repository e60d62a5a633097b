//go:build integration

package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterPage renders its initial state in markup, and only becomes interactive if its script
// runs, in the same way as a server-rendered app before hydration.
const counterPage = `<!DOCTYPE html>
<html><body>
<h1 data-testid="app-name">Waku</h1>
<p data-testid="count">0</p>
<span data-testid="padded">  Waku  </span>
<button data-testid="increment">Increment</button>
<script>
  let count = 0;
  document.querySelector('[data-testid="increment"]').addEventListener('click', () => {
    count++;
    document.querySelector('[data-testid="count"]').textContent = String(count);
  });
</script>
</body></html>`

func withCounterServer(t *testing.T, action func(url string)) {
	handler := httphelpers.HandlerWithResponse(200,
		http.Header{"Content-Type": []string{"text/html; charset=utf-8"}}, []byte(counterPage))
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		action(server.URL + "/")
	})
}

func testCounterBehavior(t *testing.T, kind string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	driver, err := Open(ctx, Config{Kind: kind, Headless: true, ExpectTimeout: time.Second})
	require.NoError(t, err)
	defer driver.Close()

	withCounterServer(t, func(url string) {
		t.Run("with JavaScript", func(t *testing.T) {
			page, err := driver.NewPage(ctx, PageOptions{JavaScriptEnabled: true})
			require.NoError(t, err)
			defer page.Close()

			require.NoError(t, page.Goto(url))
			require.NoError(t, page.ExpectText("app-name", "Waku"))
			require.NoError(t, page.ExpectText("count", "0"))
			for i := 0; i < 3; i++ {
				require.NoError(t, page.Click("increment"))
			}
			require.NoError(t, page.ExpectText("count", "3"))
		})

		t.Run("text is compared without normalizing whitespace", func(t *testing.T) {
			page, err := driver.NewPage(ctx, PageOptions{JavaScriptEnabled: true})
			require.NoError(t, err)
			defer page.Close()

			require.NoError(t, page.Goto(url))
			text, err := page.Text("padded")
			require.NoError(t, err)
			assert.Equal(t, "  Waku  ", text)
			require.NoError(t, page.ExpectText("padded", "  Waku  "))

			var assertionErr *AssertionError
			require.ErrorAs(t, page.ExpectText("padded", "Waku"), &assertionErr)
			assert.Equal(t, "  Waku  ", assertionErr.Actual)
		})

		t.Run("without JavaScript", func(t *testing.T) {
			page, err := driver.NewPage(ctx, PageOptions{JavaScriptEnabled: false})
			require.NoError(t, err)
			defer page.Close()

			require.NoError(t, page.Goto(url))
			require.NoError(t, page.ExpectText("count", "0"))
			require.NoError(t, page.Click("increment"))
			text, err := page.Text("count")
			require.NoError(t, err)
			assert.Equal(t, "0", text)
		})
	})
}

func TestPlaywrightCounter(t *testing.T) {
	testCounterBehavior(t, KindPlaywright)
}

func TestRodCounter(t *testing.T) {
	testCounterBehavior(t, KindRod)
}
