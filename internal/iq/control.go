package iq

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/rangeops/excon/internal/bus"
)

// defaultJammingDB is the jamming power used when a trigger omits
// parameters.power_db.
const defaultJammingDB = -30

// Controller services trigger injects from the message bus and mutates the
// producer and mixer accordingly. Unknown commands are logged and ignored.
type Controller struct {
	producer *Producer
	mixer    *Mixer
	logger   zerolog.Logger
}

func NewController(producer *Producer, mixer *Mixer, logger zerolog.Logger) *Controller {
	return &Controller{producer: producer, mixer: mixer, logger: logger}
}

// Attach subscribes the controller to the given inject topic.
func (c *Controller) Attach(b bus.Bus, topic string) error {
	return b.Subscribe(topic, bus.AtLeastOnce, c.Handle)
}

type triggerInject struct {
	Type    string `json:"type"`
	Content struct {
		Command    string `json:"command"`
		Parameters struct {
			PowerDB *float64 `json:"power_db"`
			File    string   `json:"file"`
		} `json:"parameters"`
	} `json:"content"`
}

// Handle processes one inject message.
func (c *Controller) Handle(msg bus.Message) {
	var inject triggerInject
	if err := json.Unmarshal(msg.Payload, &inject); err != nil {
		c.logger.Warn().Err(err).Str("topic", msg.Topic).Msg("unparseable inject")
		return
	}
	if inject.Type != "trigger" {
		return
	}

	powerDB := float64(defaultJammingDB)
	if inject.Content.Parameters.PowerDB != nil {
		powerDB = *inject.Content.Parameters.PowerDB
	}

	switch cmd := inject.Content.Command; cmd {
	case "play":
		c.producer.Play()
	case "pause":
		c.producer.Pause()
	case "stop":
		c.producer.Stop()
	case "jamming_cw":
		c.mixer.Set(JamCW, powerDB)
	case "jamming_noise":
		c.mixer.Set(JamNoise, powerDB)
	case "jamming_sweep":
		c.mixer.Set(JamSweep, powerDB)
	case "jamming_pulse":
		c.mixer.Set(JamPulse, powerDB)
	case "jamming_chirp":
		c.mixer.Set(JamChirp, powerDB)
	case "jamming_clear":
		c.mixer.Clear()
	case "switch_iq":
		file := inject.Content.Parameters.File
		if file == "" {
			c.logger.Warn().Msg("switch_iq trigger without file parameter")
			return
		}
		if err := c.producer.SwitchFile(file); err != nil {
			c.logger.Error().Err(err).Str("file", file).Msg("IQ file switch failed")
		}
	default:
		c.logger.Warn().Str("command", cmd).Msg("unknown trigger command")
	}
}
