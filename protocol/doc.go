// Package protocol implements parsing and serialising of the text protocol
// spoken between samaio and a SAM v3 bridge.
//
// The protocol aims to be
//
// - human readable
// - one command or reply per line
// - easy to tokenise
//
// === General Syntax
//
// - lines are `\n` delimited, a trailing `\r` is tolerated
// - every line starts with two words, a verb and an action (e.g. `HELLO REPLY`)
// - the remaining words are `KEY=VALUE` pairs, or bare keys
// - values containing whitespace are double quoted, `\` escapes inside quotes
//
// === Handshake
//
//  ```
//    > HELLO VERSION MIN=3.0 MAX=3.0
//    < HELLO REPLY RESULT=OK VERSION=3.0
//  ```
//
// === Sessions
//
//  ```
//    > SESSION CREATE STYLE=STREAM ID=<channel> DESTINATION=TRANSIENT [options...]
//    < SESSION STATUS RESULT=OK DESTINATION=<privkey>
//    > NAMING LOOKUP NAME=ME
//    < NAMING REPLY RESULT=OK NAME=ME VALUE=<pubkey>
//  ```
//
// === Keys and names
//
//  ```
//    > DEST GENERATE
//    < DEST REPLY PUB=<pubkey> PRIV=<privkey>
//    > NAMING LOOKUP NAME=<name>
//    < NAMING REPLY RESULT=OK NAME=<name> VALUE=<pubkey>
//  ```
//
// === Streams
//
// Each stream uses its own TCP connection to the bridge, which starts with
// its own HELLO. After a positive STATUS the connection carries raw bytes.
//
//  ```
//    > STREAM CONNECT ID=<channel> DESTINATION=<pubkey>
//    < STREAM STATUS RESULT=OK
//
//    > STREAM ACCEPT ID=<channel>
//    < STREAM STATUS RESULT=OK
//    < <peer pubkey>
//  ```
//
// === Datagrams
//
// Datagrams are sent to the bridge's UDP port prefixed with
// `3.0 <channel> <pubkey>\n`. Received datagrams arrive on the session
// connection as a header line followed by SIZE raw bytes.
//
//  ```
//    < DATAGRAM RECEIVED DESTINATION=<pubkey> SIZE=<n>
//    < RAW RECEIVED SIZE=<n>
//  ```
package protocol
