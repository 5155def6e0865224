package types

// Summary:
//   totalVotes: number
//   count: number
//   standings: Standing[]        // ranked by votes, ties keep arrival order
//   positions: PositionGroup[]   // in first-appearance order
//
// Standing:
//   rank: number                 // 1-based
//   medal: "gold" | "silver" | "bronze"   // optional, top three only
//   id: string
//   name: string
//   position: string             // optional
//   votes: number
//   image: string                // optional
//
// PositionGroup:
//   position: string             // "Unknown" when the candidate has none
//   totalVotes: number
//   candidates: Candidate[]
