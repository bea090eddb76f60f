package traffic

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairForge/marketplace/internal/identity"
	"github.com/FairForge/marketplace/internal/loadtest"
)

// fakeSite serves just enough of the marketplace for simulated visitors.
type fakeSite struct {
	mu              sync.Mutex
	listingStatus   int
	uploadFormCode  int
	pollsUntilReady int
	polls           int
	logins          int
	uploads         int
	submittedUpload []string
}

func newFakeSite() *fakeSite {
	return &fakeSite{listingStatus: http.StatusOK, uploadFormCode: http.StatusOK, pollsUntilReady: 2}
}

func (s *fakeSite) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case r.URL.Path == "/en-US/firefox/" || r.URL.Path == "/en-US/firefox/search/":
		_, _ = w.Write([]byte("<html></html>"))

	case r.URL.Path == "/en-US/firefox/extensions/":
		w.WriteHeader(s.listingStatus)
		_, _ = w.Write([]byte(`<div class="item addon"><h3><a href="/en-US/firefox/addon/alpha/">Alpha</a></h3></div>
<div class="item addon"><h3><a href="/en-US/firefox/addon/beta/">Beta</a></h3></div>`))

	case strings.HasPrefix(r.URL.Path, "/en-US/firefox/addon/"):
		_, _ = w.Write([]byte("detail"))

	case r.URL.Path == PathLogin && r.Method == http.MethodGet:
		_, _ = w.Write([]byte(`<form id="search"></form><form method="post">
<input type="hidden" name="csrfmiddlewaretoken" value="tok"><input name="username"><input name="password" type="password"></form>`))

	case r.URL.Path == PathLogin && r.Method == http.MethodPost:
		_ = r.ParseForm()
		if r.PostForm.Get("username") == "" || r.PostForm.Get("password") == "" {
			w.WriteHeader(http.StatusOK)
			return
		}
		s.logins++
		http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: "s", Path: "/"})
		http.Redirect(w, r, "/en-US/firefox/", http.StatusFound)

	case r.URL.Path == PathUploadForm && r.Method == http.MethodGet:
		if s.uploadFormCode != http.StatusOK {
			w.Header().Set("Location", "/en-US/firefox/users/login")
			w.WriteHeader(s.uploadFormCode)
			return
		}
		_, _ = w.Write([]byte(`<form id="create-addon" method="post">
<input type="hidden" name="csrfmiddlewaretoken" value="tok"><input type="hidden" name="upload"></form>`))

	case r.URL.Path == PathUploadForm && r.Method == http.MethodPost:
		_ = r.ParseForm()
		s.submittedUpload = append(s.submittedUpload, r.PostForm.Get("upload"))
		http.Redirect(w, r, "/en-US/developers/addon/alpha/versions", http.StatusFound)

	case r.URL.Path == PathUpload:
		if err := r.ParseMultipartForm(1 << 20); err != nil || r.FormValue(CSRFField) != "tok" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if _, _, err := r.FormFile("upload"); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.uploads++
		w.Header().Set("Location", fmt.Sprintf("/en-US/developers/upload/up-%d/json", s.uploads))
		w.WriteHeader(http.StatusFound)

	case strings.HasPrefix(r.URL.Path, "/en-US/developers/upload/"):
		s.polls++
		id := strings.Split(strings.TrimPrefix(r.URL.Path, "/en-US/developers/upload/"), "/")[0]
		if s.polls%(s.pollsUntilReady+1) != 0 {
			_, _ = fmt.Fprintf(w, `{"upload": %q, "validation": null, "error": null}`, id)
			return
		}
		_, _ = fmt.Fprintf(w, `{"upload": %q, "validation": {"errors": 0}, "error": null}`, id)

	default:
		http.NotFound(w, r)
	}
}

type fakeAccounts struct {
	mu          sync.Mutex
	provisioned int
	destroyed   int
}

func (a *fakeAccounts) Provision(ctx context.Context) (*identity.Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.provisioned++
	return &identity.Account{Email: fmt.Sprintf("user%d@restmail.test", a.provisioned), Password: "pw"}, nil
}

func (a *fakeAccounts) Destroy(ctx context.Context, acct *identity.Account) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.destroyed++
	return nil
}

func newTestVisitor(t *testing.T, site *fakeSite, withFixtures bool) (*Visitor, *sampleLog, *fakeAccounts) {
	t.Helper()
	srv := httptest.NewServer(site)
	t.Cleanup(srv.Close)

	config := SiteConfig{
		Host:         srv.URL,
		Accounts:     &fakeAccounts{},
		PollInterval: time.Millisecond,
	}
	if withFixtures {
		fx, err := LoadFixtures(fixtureDir(t), nil)
		require.NoError(t, err)
		config.Fixtures = fx
	}
	s, err := NewSite(config)
	require.NoError(t, err)

	log := &sampleLog{}
	user, err := s.NewUser(loadtest.UserEnv{ID: 1, Recorder: log, Rand: rand.New(rand.NewSource(7))})
	require.NoError(t, err)
	return user.(*Visitor), log, config.Accounts.(*fakeAccounts)
}

func TestNewSite_RequiresHost(t *testing.T) {
	_, err := NewSite(SiteConfig{})
	assert.Error(t, err)
}

func TestVisitor_Tasks(t *testing.T) {
	v, _, _ := newTestVisitor(t, newFakeSite(), false)
	tasks := v.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, BrowseWeight, tasks[0].Weight)
	assert.Zero(t, tasks[1].Weight, "uploads need fixtures")

	v, _, _ = newTestVisitor(t, newFakeSite(), true)
	assert.Equal(t, UploadWeight, v.Tasks()[1].Weight)
}

func TestVisitor_Browse(t *testing.T) {
	v, log, _ := newTestVisitor(t, newFakeSite(), false)

	require.NoError(t, v.Browse(context.Background()))

	assert.Empty(t, log.failures())
	assert.Len(t, log.named(PathHome), 1)
	assert.Len(t, log.named(PathSearch), 1)
	assert.Len(t, log.named(PathExtensions), 1)
	assert.Len(t, log.named(PathAddon), 1, "detail page is grouped under one name")
}

func TestVisitor_Browse_UnexpectedListingStatus(t *testing.T) {
	site := newFakeSite()
	site.listingStatus = http.StatusServiceUnavailable
	v, log, _ := newTestVisitor(t, site, false)

	err := v.Browse(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, loadtest.ErrReported)

	failures := log.failures()
	require.Len(t, failures, 1)
	assert.Equal(t, PathExtensions, failures[0].Name)
	assert.EqualError(t, failures[0].Err, "Unexpected status code 503")
	assert.Empty(t, log.named(PathAddon))
}

func TestVisitor_Lifecycle_Upload(t *testing.T) {
	site := newFakeSite()
	v, log, accounts := newTestVisitor(t, site, true)
	ctx := context.Background()

	require.NoError(t, v.OnStart(ctx))
	require.NoError(t, v.Upload(ctx))
	require.NoError(t, v.Upload(ctx))
	require.NoError(t, v.OnStop(ctx))

	assert.Empty(t, log.failures())
	assert.Equal(t, 1, site.logins, "login happens once per session")
	assert.Equal(t, []string{"up-1", "up-2"}, site.submittedUpload)
	assert.Len(t, log.named(pollSampleName), 6)
	assert.Equal(t, 1, accounts.provisioned)
	assert.Equal(t, 1, accounts.destroyed)
}

func TestVisitor_Upload_FormRedirected(t *testing.T) {
	site := newFakeSite()
	site.uploadFormCode = http.StatusFound
	v, log, _ := newTestVisitor(t, site, true)
	ctx := context.Background()

	require.NoError(t, v.OnStart(ctx))
	err := v.Upload(ctx)
	require.Error(t, err)

	failures := log.failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "Unexpected status: 302; Location: /en-US/firefox/users/login", failures[0].Err.Error())
	assert.Zero(t, site.uploads)
}

func TestVisitor_Upload_NeedsAccount(t *testing.T) {
	v, _, _ := newTestVisitor(t, newFakeSite(), true)
	assert.Error(t, v.Upload(context.Background()))
}

func TestSite_WithHarness(t *testing.T) {
	site := newFakeSite()
	srv := httptest.NewServer(site)
	defer srv.Close()

	fx, err := LoadFixtures(fixtureDir(t), nil)
	require.NoError(t, err)
	accounts := &fakeAccounts{}
	s, err := NewSite(SiteConfig{Host: srv.URL, Fixtures: fx, Accounts: accounts, PollInterval: time.Millisecond})
	require.NoError(t, err)

	config := loadtest.DefaultConfig("site")
	config.Users = 3
	config.HatchRate = 0
	config.MinWait = 0
	config.MaxWait = 0
	config.TaskLimit = 4
	config.Seed = 3

	summary, err := loadtest.New(config, s.NewUser).Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, summary.FailureCount)
	assert.Positive(t, summary.TotalRequests)
	assert.Equal(t, 3, accounts.provisioned)
	assert.Equal(t, 3, accounts.destroyed)
}
