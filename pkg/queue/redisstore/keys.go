package redisstore

import (
	"strconv"
	"strings"
)

// keyspace builds key names for one vhost.
//
//	<prefix>:{<vhost>}:msg:<id>                        message hash
//	<prefix>:{<vhost>}:q:<len(group)>:<group>:<queue>   queue base
//	<base>:delayed | <base>:ready | <base>:claimed      queue indexes
//	<prefix>:{<vhost>}:queues                           set of queue bases
type keyspace struct {
	prefix string
	vhost  string
}

func (k keyspace) root() string {
	return k.prefix + ":{" + k.vhost + "}"
}

func (k keyspace) messagePrefix() string {
	return k.root() + ":msg:"
}

func (k keyspace) message(id string) string {
	return k.messagePrefix() + id
}

// base is length-prefixed so that colons inside names cannot collide.
func (k keyspace) base(group, queue string) string {
	return k.root() + ":q:" + strconv.Itoa(len(group)) + ":" + group + ":" + queue
}

func (k keyspace) queues() string {
	return k.root() + ":queues"
}

// pattern matches every key of the vhost.
func (k keyspace) pattern() string {
	return escapeGlob(k.root()) + ":*"
}

func delayedKey(base string) string { return base + ":delayed" }
func readyKey(base string) string   { return base + ":ready" }
func claimedKey(base string) string { return base + ":claimed" }

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
