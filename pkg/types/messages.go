package types

// Browser -> Server (/ws)
// GetState: {}
//   asks for the current snapshot outside the push cadence
//
// Server -> Browser (/ws)
// StateSnapshot:
//   version: number
//   seeded: boolean
//   summary: Summary (see snapshot.go)
//
// Unauthorized: {}
//   the admin token was rejected; the socket is closed right after
//
// Error:
//   error: string
//
// Server -> Backend push channel
// subscribe:
//   candidateIds: string[]   // empty means every candidate
//
// unsubscribe:
//   candidateIds: string[]
//
// Backend push channel -> Server
// voteUpdate:
//   candidateId: string      // also accepted as _id or id
//   voteCount: number        // also accepted as votes or count
//
// bulkVoteUpdate:
//   updates: voteUpdate[]
