package guard_test

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tillpoint/controlplane/internal/guard"
)

func TestAllowList_Allows(t *testing.T) {
	l, err := guard.NewAllowList([]string{"10.0.0.0/8", " 192.0.2.10 ", "", "2001:db8::/32"})
	require.NoError(t, err)

	assert.True(t, l.Allows("10.20.30.40"))
	assert.True(t, l.Allows("192.0.2.10"))
	assert.True(t, l.Allows("::ffff:192.0.2.10"))
	assert.True(t, l.Allows("2001:db8::1"))
	assert.False(t, l.Allows("192.0.2.11"))
	assert.False(t, l.Allows("not-an-ip"))
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.10/32", "2001:db8::/32"}, l.Entries())
}

func TestAllowList_EmptyAdmitsEveryone(t *testing.T) {
	l, err := guard.NewAllowList(nil)
	require.NoError(t, err)
	assert.True(t, l.Allows("8.8.8.8"))
	assert.True(t, l.Allows("garbage"))
}

func TestAllowList_ReplaceKeepsOldListOnError(t *testing.T) {
	l, err := guard.NewAllowList([]string{"10.0.0.1"})
	require.NoError(t, err)

	assert.Error(t, l.Replace([]string{"10.0.0.2", "300.1.1.1"}))
	assert.True(t, l.Allows("10.0.0.1"))
	assert.False(t, l.Allows("10.0.0.2"))

	require.NoError(t, l.Replace([]string{"10.0.0.2"}))
	assert.False(t, l.Allows("10.0.0.1"))
	assert.True(t, l.Allows("10.0.0.2"))
}

func TestAllowList_InvalidEntries(t *testing.T) {
	_, err := guard.NewAllowList([]string{"10.0.0.0/33"})
	assert.Error(t, err)
	_, err = guard.NewAllowList([]string{"example.com"})
	assert.Error(t, err)
}

func TestMiddleware_BlocksClientIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l, err := guard.NewAllowList([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "8.8.8.8:1234"
	ctx.Request = req

	l.Middleware()(ctx)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.True(t, ctx.IsAborted())
}

func TestMiddleware_AllowsClientIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l, err := guard.NewAllowList([]string{"8.8.8.8"})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "8.8.8.8:1234"
	ctx.Request = req

	l.Middleware()(ctx)
	assert.False(t, ctx.IsAborted())
}

func TestAllowList_ConcurrentReplace(t *testing.T) {
	l, err := guard.NewAllowList([]string{"10.0.0.1"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = l.Replace([]string{"10.0.0.1", "10.0.0.2"})
		}()
		go func() {
			defer wg.Done()
			assert.True(t, l.Allows("10.0.0.1"))
		}()
	}
	wg.Wait()
}
