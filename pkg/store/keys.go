package store

import "fmt"

// Key namespaces. Pebble keeps keys sorted, so the message key doubles as
// both the conversationId index and the createdAt ordering, and the
// convidx namespace is the secondary recency index over conversations.
//
//	conv:<id>                                  conversation record (JSON)
//	convidx:updated:<pad20 updatedAt>:<id>     recency index -> conversation id
//	msg:<conversationID>:<pad20 ts>-<pad6 seq> message record (JSON)
//	msgid:<messageID>                          message id -> primary message key
//	meta:schema                                schema version
//	settings:<name>                            settings documents (not touched here)
const (
	convPrefix    = "conv:"
	convIdxPrefix = "convidx:updated:"
	msgPrefix     = "msg:"
	msgIDPrefix   = "msgid:"
	schemaKey     = "meta:schema"
)

func convKey(id string) []byte {
	return []byte(convPrefix + id)
}

func convIdxKey(updatedAt int64, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", convIdxPrefix, updatedAt, id))
}

// msgKey builds the primary message key. The padded createdAt (ms) keeps
// messages in time order under the conversation prefix and seq breaks ties
// when two messages share the same millisecond.
func msgKey(conversationID string, createdAt int64, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d-%06d", msgPrefix, conversationID, createdAt, seq))
}

func msgConvPrefix(conversationID string) []byte {
	return []byte(msgPrefix + conversationID + ":")
}

func msgIDKey(id string) []byte {
	return []byte(msgIDPrefix + id)
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix, for use as an iterator upper bound.
func prefixUpperBound(prefix []byte) []byte {
	ub := append([]byte(nil), prefix...)
	for i := len(ub) - 1; i >= 0; i-- {
		if ub[i] < 0xff {
			ub[i]++
			return ub[:i+1]
		}
	}
	return nil
}
