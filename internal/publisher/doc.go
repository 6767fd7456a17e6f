// Package publisher delivers job completion notifications. The memory
// implementation records messages for tests and local runs; the pubsub
// implementation publishes to Google Cloud Pub/Sub.
package publisher
