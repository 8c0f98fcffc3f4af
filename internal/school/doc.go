// Package school defines the records, sentinels, and collaborator contracts
// shared by the outreach pipeline stages.
package school
