// Package airdropservice implements the token airdrop inside the
// token-distribution context.
//
// The module disburses a fixed grant to each recipient address at most once.
// A storage-level reservation orders concurrent requests, the transfer is
// signed with the service's funding identity under a serialized nonce
// sequence, and the outcome is committed only after the chain reports the
// transfer finalized. Terminal outcomes are written to an outbox in the same
// transaction and relayed to Kafka by the worker process.
package airdropservice
