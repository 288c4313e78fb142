// Package auth provides bearer-token authentication for the tessera
// control surface.
//
// The model is deliberately small: tokens are HS256 JWTs signed with a
// shared secret from config, carrying a role claim. There is no user
// database — tokens are minted out of band (installer tooling or the
// token subcommand) and validated by signature alone, so the hot path
// never touches storage.
//
// Three roles cover the gallery floor:
//   - viewer: read-only dashboards and status feeds
//   - operator: everything viewer can do, plus commands, scene
//     dispatch, schedule reloads and maintenance notes
//   - admin: full control including component and schedule CRUD
//
// The heartbeat ingest endpoint is intentionally outside this model;
// exhibit machines report without credentials.
package auth
