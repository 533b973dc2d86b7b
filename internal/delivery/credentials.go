package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vrsandeep/litpush/internal/config"
	"github.com/vrsandeep/litpush/internal/models"
)

// EnvironmentChannel is the name of the channel backed by smtp.* settings.
const EnvironmentChannel = "environment"

// Credentials are what a transport needs to send through one channel.
type Credentials struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// CredentialProvider yields the sending identity of a channel.
type CredentialProvider interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// ConfiguredProvider reads credentials stored on a delivery_channels row.
type ConfiguredProvider struct {
	Channel models.DeliveryChannel
}

func (p ConfiguredProvider) Credentials(ctx context.Context) (Credentials, error) {
	if p.Channel.Host == "" {
		return Credentials{}, fmt.Errorf("channel %s has no host configured", p.Channel.Name)
	}
	from := p.Channel.FromAddr
	if from == "" {
		from = p.Channel.Username
	}
	return Credentials{
		Host:     p.Channel.Host,
		Port:     p.Channel.Port,
		Username: p.Channel.Username,
		Password: p.Channel.Password,
		From:     from,
	}, nil
}

// EnvironmentProvider reads credentials from the smtp section of the config,
// which viper lets LITPUSH_SMTP_* environment variables override.
type EnvironmentProvider struct {
	SMTP config.SMTPConfig
}

func (p EnvironmentProvider) Credentials(ctx context.Context) (Credentials, error) {
	if p.SMTP.Host == "" {
		return Credentials{}, errors.New("smtp.host is not set")
	}
	from := p.SMTP.From
	if from == "" {
		from = p.SMTP.Username
	}
	return Credentials{
		Host:     p.SMTP.Host,
		Port:     p.SMTP.Port,
		Username: p.SMTP.Username,
		Password: p.SMTP.Password,
		From:     from,
	}, nil
}

// ResolveProviders runs once at startup. When the database holds no active
// channel and an SMTP host is configured, it ensures the environment channel
// row exists so its quota is tracked like any other channel. Credentials of
// that row stay in the environment.
func ResolveProviders(st ChannelStore, smtp config.SMTPConfig, logger *slog.Logger) error {
	channels, err := st.ListChannels(true)
	if err != nil {
		return fmt.Errorf("resolve delivery channels: %w", err)
	}
	if len(channels) > 0 {
		if logger != nil {
			logger.Info("using configured delivery channels", "count", len(channels))
		}
		return nil
	}
	if smtp.Host == "" {
		if logger != nil {
			logger.Warn("no delivery channel configured; digests cannot be sent")
		}
		return nil
	}
	limit := smtp.DailyLimit
	if limit <= 0 {
		limit = 400
	}
	ch, err := st.EnsureChannel(models.DeliveryChannel{
		Name:       EnvironmentChannel,
		Port:       smtp.Port,
		FromAddr:   smtp.From,
		DailyLimit: limit,
		Active:     true,
	})
	if err != nil {
		return err
	}
	if logger != nil {
		logger.Info("using environment delivery channel", "channel_id", ch.ID, "daily_limit", ch.DailyLimit)
	}
	return nil
}
