package traffic

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/FairForge/marketplace/internal/identity"
	"github.com/FairForge/marketplace/internal/loadtest"
)

// Site paths exercised by simulated users.
const (
	PathHome       = "/en-US/firefox/"
	PathSearch     = "/en-US/firefox/search/?q=pi&appver=45.0&platform=mac"
	PathExtensions = "/en-US/firefox/extensions/"
	PathAddon      = "/en-US/firefox/addon/:slug"
	PathLogin      = "/en-US/firefox/users/login"
	PathUploadForm = "/en-US/developers/addon/submit/upload-listed"
	PathUpload     = "/en-US/developers/upload"

	addonLinkSelector = ".item.addon h3 a"
	uploadFormID      = "create-addon"
)

// Task weights.
const (
	BrowseWeight = 5
	UploadWeight = 1
)

// Accounts provisions the identity a simulated user signs in with.
type Accounts interface {
	Provision(ctx context.Context) (*identity.Account, error)
	Destroy(ctx context.Context, acct *identity.Account) error
}

// SiteConfig configures the simulated site visitors.
type SiteConfig struct {
	Host     string
	Fixtures *Fixtures // nil disables uploads
	Accounts Accounts  // nil skips account provisioning

	LoginForm  FormSelector
	UploadForm FormSelector

	PollAttempts int
	PollInterval time.Duration
	Logger       *zap.Logger
}

// Site builds simulated users for one target host.
type Site struct {
	config SiteConfig
	logger *zap.Logger
}

// NewSite validates config and fills in defaults.
func NewSite(config SiteConfig) (*Site, error) {
	if config.Host == "" {
		return nil, errors.New("traffic: host is required")
	}
	if config.LoginForm == nil {
		config.LoginForm = OnlyFormWithoutID()
	}
	if config.UploadForm == nil {
		config.UploadForm = ByID(uploadFormID)
	}
	if config.PollAttempts == 0 {
		config.PollAttempts = DefaultPollAttempts
	}
	if config.PollInterval == 0 {
		config.PollInterval = DefaultPollInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Site{config: config, logger: logger}, nil
}

// NewUser is a loadtest.UserFactory.
func (s *Site) NewUser(env loadtest.UserEnv) (loadtest.User, error) {
	client, err := NewClient(s.config.Host, env.Recorder, env.ID)
	if err != nil {
		return nil, err
	}
	logger := env.Logger
	if logger == nil {
		logger = s.logger.With(zap.Int("user_id", env.ID))
	}

	poller := NewPoller(client)
	poller.MaxAttempts = s.config.PollAttempts
	poller.Interval = s.config.PollInterval

	return &Visitor{
		site:   s,
		env:    env,
		client: client,
		poller: poller,
		logger: logger,
	}, nil
}

// Visitor is one simulated person using the site.
type Visitor struct {
	site   *Site
	env    loadtest.UserEnv
	client *Client
	poller *Poller
	logger *zap.Logger

	account  *identity.Account
	loggedIn bool
}

// OnStart provisions and verifies the visitor's account.
func (v *Visitor) OnStart(ctx context.Context) error {
	if v.site.config.Accounts == nil {
		return nil
	}
	acct, err := v.site.config.Accounts.Provision(ctx)
	if err != nil {
		return fmt.Errorf("provision account: %w", err)
	}
	v.account = acct
	v.logger.Debug("visitor account ready", zap.String("email", acct.Email))
	return nil
}

// Tasks returns browse and, when fixtures are configured, upload.
func (v *Visitor) Tasks() []loadtest.Task {
	upload := 0
	if v.site.config.Fixtures != nil {
		upload = UploadWeight
	}
	return []loadtest.Task{
		{Name: "browse", Weight: BrowseWeight, Run: v.Browse},
		{Name: "upload", Weight: upload, Run: v.Upload},
	}
}

// OnStop clears the mailbox and destroys the account.
func (v *Visitor) OnStop(ctx context.Context) error {
	if v.account == nil {
		return nil
	}
	err := v.site.config.Accounts.Destroy(ctx, v.account)
	v.account = nil
	v.loggedIn = false
	return err
}

// Browse visits the landing page, a search and the extensions listing,
// then opens one listed add-on.
func (v *Visitor) Browse(ctx context.Context) error {
	if _, err := v.client.Get(ctx, PathHome); err != nil {
		return err
	}
	if _, err := v.client.Get(ctx, PathSearch); err != nil {
		return err
	}

	listing, err := v.client.Get(ctx, PathExtensions, NoRedirects(), Catch())
	if err != nil {
		return err
	}
	if listing.StatusCode != http.StatusOK {
		return fail(listing, fmt.Errorf("Unexpected status code %d", listing.StatusCode))
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(listing.Body))
	if err != nil {
		return fail(listing, fmt.Errorf("parse extensions listing: %w", err))
	}
	var links []string
	doc.Find(addonLinkSelector).Each(func(_ int, a *goquery.Selection) {
		if href, ok := a.Attr("href"); ok && href != "" {
			links = append(links, href)
		}
	})
	if len(links) == 0 {
		return fail(listing, errors.New("no add-on links on extensions listing"))
	}
	listing.Success()

	link := links[v.env.Rand.Intn(len(links))]
	_, err = v.client.Get(ctx, link, Name(PathAddon))
	return err
}

// Login signs in through the site login form once per session.
func (v *Visitor) Login(ctx context.Context) error {
	if v.loggedIn {
		return nil
	}
	if v.account == nil {
		return errors.New("traffic: no account to log in with")
	}

	page, err := v.client.Get(ctx, PathLogin)
	if err != nil {
		return err
	}
	if page.StatusCode != http.StatusOK {
		err := &StatusError{StatusCode: page.StatusCode}
		if page.StatusCode >= 400 {
			return loadtest.Reported(err)
		}
		return err
	}
	form, err := FindForm(page, v.site.config.LoginForm)
	if err != nil {
		return fmt.Errorf("login form: %w", err)
	}

	overrides := url.Values{
		"username": {v.account.Email},
		"password": {v.account.Password},
	}
	if _, err := v.client.SubmitForm(ctx, form, overrides, ""); err != nil {
		return err
	}
	v.loggedIn = true
	return nil
}

// Upload submits a unique copy of a fixture package, waits for it to be
// validated and completes the submission form.
func (v *Visitor) Upload(ctx context.Context) error {
	if v.site.config.Fixtures == nil {
		return ErrNoFixtures
	}
	if err := v.Login(ctx); err != nil {
		return err
	}

	page, err := v.client.Get(ctx, PathUploadForm, NoRedirects(), Catch())
	if err != nil {
		return err
	}
	if page.StatusCode != http.StatusOK {
		more := ""
		if page.StatusCode == http.StatusMovedPermanently || page.StatusCode == http.StatusFound {
			more = "; Location: " + page.Location()
		}
		return fail(page, fmt.Errorf("Unexpected status: %d%s", page.StatusCode, more))
	}
	form, err := FindForm(page, v.site.config.UploadForm)
	if err != nil {
		return fail(page, err)
	}
	page.Success()

	token, ok := form.Values[CSRFField]
	if !ok {
		return ErrWrongForm
	}

	src, err := v.site.config.Fixtures.Pick(v.env.Rand)
	if err != nil {
		return err
	}

	return WithUniquePackage(src, func(pkg *Package) error {
		file, err := os.Open(pkg.Path)
		if err != nil {
			return fmt.Errorf("open package: %w", err)
		}
		defer func() { _ = file.Close() }()

		resp, err := v.client.PostMultipart(ctx, PathUpload,
			url.Values{CSRFField: token},
			FileField{Field: "upload", Filename: filepath.Base(pkg.Path), Content: file},
			NoRedirects(), Catch(), Name("devhub.upload "+filepath.Ext(pkg.Path)))
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusFound {
			return fail(resp, fmt.Errorf("Unexpected status: %d", resp.StatusCode))
		}
		resp.Success()

		uploadID, err := v.poller.Poll(ctx, resp.Location())
		if err != nil {
			return err
		}
		v.logger.Debug("upload validated", zap.String("upload", uploadID), zap.String("addon", pkg.Name))

		_, err = v.client.SubmitForm(ctx, form, url.Values{"upload": {uploadID}}, PathUploadForm)
		return err
	})
}
