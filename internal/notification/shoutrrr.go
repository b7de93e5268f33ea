package notification

import (
	"context"
	"fmt"
	"io"
	"log"
	"slices"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/kickspeed/kickspeed/internal/logger"
)

// ShoutrrrProvider sends via nicholas-fedor/shoutrrr.
// Creates a single sender for multiple URLs.
type ShoutrrrProvider struct {
	name    string
	enabled bool
	urls    []string
	types   map[Type]bool
	sender  *router.ServiceRouter
	timeout time.Duration
}

// NewShoutrrrProvider creates a provider. Empty supportedTypes accepts every type.
func NewShoutrrrProvider(name string, enabled bool, urls []string, supportedTypes []Type, timeout time.Duration) *ShoutrrrProvider {
	sp := &ShoutrrrProvider{
		name:    strings.TrimSpace(name),
		enabled: enabled,
		urls:    slices.Clone(urls),
		types:   map[Type]bool{},
		timeout: timeout,
	}
	if sp.name == "" {
		sp.name = "shoutrrr"
	}
	if len(supportedTypes) == 0 {
		supportedTypes = []Type{TypeError, TypeWarning, TypeInfo}
	}
	for _, t := range supportedTypes {
		sp.types[t] = true
	}
	return sp
}

func (s *ShoutrrrProvider) GetName() string          { return s.name }
func (s *ShoutrrrProvider) IsEnabled() bool          { return s.enabled }
func (s *ShoutrrrProvider) SupportsType(t Type) bool { return s.types[t] }

// ValidateConfig builds the sender, which validates every URL
func (s *ShoutrrrProvider) ValidateConfig() error {
	if !s.enabled {
		return nil
	}
	if len(s.urls) == 0 {
		return fmt.Errorf("at least one URL is required")
	}
	sender, err := shoutrrr.CreateSender(s.urls...)
	if err != nil {
		// service URLs embed tokens
		return fmt.Errorf("invalid notification URL: %s", logger.RedactSensitiveData(err.Error()))
	}
	s.sender = sender
	if s.timeout > 0 {
		s.sender.Timeout = s.timeout
	}
	s.sender.SetLogger(log.New(io.Discard, "", 0))
	return nil
}

// Send delivers n to every configured URL and returns the first error
func (s *ShoutrrrProvider) Send(ctx context.Context, n *Notification) error {
	if s.sender == nil {
		return fmt.Errorf("shoutrrr sender not initialized")
	}
	_ = ctx // router handles its own timeouts

	params := stypes.Params{}
	if n.Title != "" {
		params.SetTitle(n.Title)
	}
	for _, e := range s.sender.Send(n.Message, &params) {
		if e != nil {
			return fmt.Errorf("notification delivery failed: %s", logger.RedactSensitiveData(e.Error()))
		}
	}
	return nil
}
