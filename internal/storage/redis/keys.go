package redis

import (
	"fmt"
	"strings"

	"github.com/mcoot/pingpong/internal/model"
)

// Key prefix for all tournament data
const keyPrefix = "pingpong"

// Key generation functions for each entity type

// playerKey returns the Redis key for a Player
func playerKey(id model.PlayerID) string {
	return fmt.Sprintf("%s:player:%s", keyPrefix, id)
}

// playersIndexKey returns the Redis key for the SET of all player ids
func playersIndexKey() string {
	return fmt.Sprintf("%s:idx:players", keyPrefix)
}

// registrationIndexKey returns the Redis key for the name+room -> player_id
// index. The name is length-prefixed so a ':' inside either part cannot make
// two registrations share a key.
func registrationIndexKey(name, room string) string {
	name = strings.ToLower(name)
	return fmt.Sprintf("%s:idx:registration:%d:%s:%s", keyPrefix,
		len(name), name, strings.ToLower(room))
}

// matchKey returns the Redis key for a Match
func matchKey(id model.MatchID) string {
	return fmt.Sprintf("%s:match:%s", keyPrefix, id)
}

// matchesIndexKey returns the Redis key for the SET of all match ids
func matchesIndexKey() string {
	return fmt.Sprintf("%s:idx:matches", keyPrefix)
}

// adminsKey returns the Redis key for the admins allow-list SET
func adminsKey() string {
	return fmt.Sprintf("%s:admins", keyPrefix)
}

// accountKey returns the Redis key for an auth account, by normalized email
func accountKey(email string) string {
	return fmt.Sprintf("%s:account:%s", keyPrefix, email)
}

// seqKey returns the Redis key for a collection's write sequence counter
func seqKey(c model.Collection) string {
	return fmt.Sprintf("%s:seq:%s", keyPrefix, c)
}

// changesChannel returns the pubsub channel carrying a collection's change events
func changesChannel(c model.Collection) string {
	return fmt.Sprintf("%s:changes:%s", keyPrefix, c)
}

// changesPattern matches every collection's change channel
func changesPattern() string {
	return fmt.Sprintf("%s:changes:*", keyPrefix)
}
