package ir

// ClientVersion is the planbuilder client version reported by the CLI.
const ClientVersion = "0.1.0"
