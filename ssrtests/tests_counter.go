package ssrtests

const (
	appNameTestID   = "app-name"
	countTestID     = "count"
	incrementTestID = "increment"

	expectedAppName = "Waku"
)

func DoCounterTests(t *T) {
	t.Run("increase counter", DoIncreaseCounterTest)
	t.Run("no js environment should have first screen", DoNoJavaScriptFirstScreenTest)
}

func DoIncreaseCounterTest(t *T) {
	page := t.OpenPage(true)
	t.Goto(page, "/")
	t.RequireText(page, appNameTestID, expectedAppName)
	t.RequireText(page, countTestID, "0")
	t.Click(page, incrementTestID)
	t.Click(page, incrementTestID)
	t.Click(page, incrementTestID)
	t.RequireText(page, countTestID, "3")
}

// DoNoJavaScriptFirstScreenTest checks that the server-rendered markup alone shows the app,
// and that without scripts the counter is not interactive.
func DoNoJavaScriptFirstScreenTest(t *T) {
	page := t.OpenPage(false)
	t.Goto(page, "/")
	t.RequireText(page, appNameTestID, expectedAppName)
	t.RequireText(page, countTestID, "0")
	t.Click(page, incrementTestID)
	t.RequireText(page, countTestID, "0")
}
