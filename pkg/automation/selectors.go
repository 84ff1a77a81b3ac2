package automation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SelectorProfile is the prioritized set of locators the step executors
// use. The defaults cover the common page layout; a YAML file can override
// any of them without recompiling.
type SelectorProfile struct {
	Login      LoginSelectors      `yaml:"login"`
	Navigation NavigationSelectors `yaml:"navigation"`
	List       ListSelectors       `yaml:"list"`
	Connect    ConnectSelectors    `yaml:"connect"`
}

// LoginSelectors locate the login form and its outcome markers
type LoginSelectors struct {
	// URL is the login page; empty means the target URL itself
	URL string `yaml:"url"`

	// Email locates the username/email input
	Email string `yaml:"email"`

	// Password locates the password input
	Password string `yaml:"password"`

	// Submit locates the form submit button
	Submit string `yaml:"submit"`

	// Marker is an element only present after successful authentication
	Marker string `yaml:"marker"`

	// ErrorBanner is shown when credentials are rejected
	ErrorBanner string `yaml:"error_banner"`
}

// NavigationSelectors locate the target view
type NavigationSelectors struct {
	// Trigger optionally opens the modal/list container after navigation
	Trigger string `yaml:"trigger"`

	// ContainerFallbacks is the prioritized list of locators for the
	// expected container; tried in order
	ContainerFallbacks []string `yaml:"container_fallbacks"`
}

// ListSelectors locate the scrollable list and its items
type ListSelectors struct {
	// Container is the internal scrollable region (never the outer page)
	Container string `yaml:"container"`

	// Item locates one candidate entry
	Item string `yaml:"item"`

	// ExtractScript is the in-page script producing candidate records;
	// it receives the item selector and returns [{id, name, mutual}]
	ExtractScript string `yaml:"extract_script"`

	// ConnectButtonTemplate is a fmt template taking the 1-based item
	// index and yielding the item's connect-button locator
	ConnectButtonTemplate string `yaml:"connect_button_template"`
}

// ConnectSelectors locate connection-action outcomes
type ConnectSelectors struct {
	// SentMarkerTemplate is a fmt template taking the 1-based item index
	// and yielding the locator that proves the request was sent
	SentMarkerTemplate string `yaml:"sent_marker_template"`

	// BlockedBanner is shown when the platform flags automation
	BlockedBanner string `yaml:"blocked_banner"`
}

const defaultExtractScript = `(sel) => Array.from(document.querySelectorAll(sel)).map((el, i) => ({
	id: el.getAttribute('data-member-id') || String(i + 1),
	name: ((el.querySelector('.member-name') || {}).textContent || '').trim(),
	mutual: parseInt((((el.querySelector('.mutual-count') || {}).textContent) || '0').replace(/\D/g, ''), 10) || 0
}))`

// DefaultSelectors returns the built-in selector profile
func DefaultSelectors() *SelectorProfile {
	return &SelectorProfile{
		Login: LoginSelectors{
			Email:       "input#username",
			Password:    "input#password",
			Submit:      "button[type=submit]",
			Marker:      "nav.global-nav",
			ErrorBanner: "div.form-error",
		},
		Navigation: NavigationSelectors{
			ContainerFallbacks: []string{
				"div.member-list-modal",
				"section.member-list",
				"div[data-view=members]",
			},
		},
		List: ListSelectors{
			Container:             "div.member-list-modal ul",
			Item:                  "li.member-card",
			ExtractScript:         defaultExtractScript,
			ConnectButtonTemplate: "li.member-card:nth-child(%d) button.connect-action",
		},
		Connect: ConnectSelectors{
			SentMarkerTemplate: "li.member-card:nth-child(%d) button.pending-action",
			BlockedBanner:      "div.automation-warning",
		},
	}
}

// LoadSelectors reads a YAML selector profile, overlaying the defaults.
// An empty path returns the defaults.
func LoadSelectors(path string) (*SelectorProfile, error) {
	profile := DefaultSelectors()
	if path == "" {
		return profile, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read selectors file: %w", err)
	}

	if err := yaml.Unmarshal(data, profile); err != nil {
		return nil, fmt.Errorf("failed to parse selectors file: %w", err)
	}
	return profile, nil
}
