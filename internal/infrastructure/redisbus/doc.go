// Package redisbus carries bridge traffic over Redis pub/sub.
//
// It is the alternative transport selected with broker.type: redis. Topic
// names keep their MQTT shape and become channel names; filters with "+" or
// "#" are subscribed with PSUBSCRIBE and re-checked against MQTT wildcard
// rules on delivery. There is no retained-message or last-will equivalent.
package redisbus
