// Package auth provides the authentication and authorization core for a
// mentorship platform backend: credential login with bcrypt hashing, JWT
// issuance, single-use refresh token rotation, email verification, password
// reset, and role plus ownership gated HTTP middleware.
//
// Account lifecycle:
//   - Accounts carry an AccountStatus field that is persisted via Bun.
//     Statuses cover active, suspended, and archived flows; archived is
//     terminal. Suspended accounts fail login with a distinct error while
//     unknown emails and wrong passwords stay indistinguishable.
//   - AccountStateMachine centralizes the transition graph, timestamp
//     handling, hooks, and persistence. Invoke Transition with ActorRef
//     metadata whenever an admin moves an account.
//
// Token revocation:
//   - Each account carries a token_version counter baked into access token
//     claims. Password resets bump the version, which invalidates every
//     outstanding access token the next time the gate checks it, and revoke
//     the stored refresh token in the same statement.
//   - Refresh tokens are opaque, stored on the account row, and rotated with
//     a conditional update so a presented token is consumed exactly once
//     even under concurrent use.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by Auther, the
//     command handlers, and the state machine to describe lifecycle, login,
//     and password reset events. Sinks run best-effort (errors are logged)
//     so you can forward to a database or queue without blocking
//     authentication. AuditRecorder persists events to the audit_entries
//     table; the dispatch package can forward them to Kafka.
package auth
