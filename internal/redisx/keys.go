package redisx

import (
	"fmt"
	"time"
)

const (
	// Dedup pemrosesan message: dedup:{queue}:{message_id}
	KeyDedup = "dedup:%s:%s"

	// Pub/sub status order per user: order_status_update:{user_id}
	ChannelUserStatus = "order_status_update:%s"

	// Pub/sub broadcast ke semua client
	ChannelGlobal = "global_notification"
)

var TTLDedup = 48 * time.Hour

func DedupKey(queue, id string) string { return fmt.Sprintf(KeyDedup, queue, id) }

func UserChannel(userID string) string { return fmt.Sprintf(ChannelUserStatus, userID) }
