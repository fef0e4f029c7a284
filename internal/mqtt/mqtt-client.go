package mqtt

import (
	"context"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/lucaslui/hems/sensor-bridge/internal/config"
)

// BuildMQTTClient prepares a client that (re)subscribes the listener on every
// connect. Order matters is kept on so paho calls the handler from a single
// goroutine in arrival order.
func BuildMQTTClient(cfg config.MQTTConfig, l *Listener, logger zerolog.Logger) mqtt.Client {
	logger = logger.With().Str("component", "mqtt").Logger()
	qos := byte(cfg.QoS)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetOrderMatters(true).
		SetCleanSession(false).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetConnectTimeout(10 * time.Second).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(cfg.MaxBackoff)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.OnConnect = func(c mqtt.Client) {
		logger.Info().Str("broker", cfg.BrokerURL).Msg("connected to broker")
		if token := c.Subscribe(cfg.Topic, qos, l.HandleMessage); token.Wait() && token.Error() != nil {
			logger.Error().Err(token.Error()).Str("topic", cfg.Topic).Msg("subscribe failed")
		} else {
			logger.Info().Str("topic", cfg.Topic).Uint8("qos", qos).Msg("subscribed")
		}
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("connection lost")
	}
	opts.OnReconnecting = func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		logger.Info().Msg("reconnecting")
	}

	return mqtt.NewClient(opts)
}

// ConnectWithBackoff retries the initial connect, doubling the wait up to max,
// until it succeeds or ctx is done.
func ConnectWithBackoff(ctx context.Context, client mqtt.Client, start, max time.Duration, logger zerolog.Logger) error {
	backoff := start
	for {
		token := client.Connect()
		token.Wait()
		if token.Error() == nil {
			return nil
		}
		logger.Warn().Err(token.Error()).Dur("retry_in", backoff).Msg("mqtt connect failed")

		select {
		case <-time.After(backoff):
			backoff *= 2
			if backoff > max {
				backoff = max
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
