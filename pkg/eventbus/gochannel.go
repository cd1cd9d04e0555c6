package eventbus

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// NewGoChannelBus builds an in-process bus. Suitable for single-binary
// deployments and tests; messages do not survive a restart.
func NewGoChannelBus(logger watermill.LoggerAdapter) *Bus {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer: 1000,
			Persistent:          false,
		},
		logger,
	)

	return NewBus(pubSub, pubSub)
}
