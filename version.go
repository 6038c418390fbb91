// Package minidumpmcp exposes minidump stackwalking and Breakpad symbol
// extraction over the Model Context Protocol.
package minidumpmcp

// Version is the server and client version reported over MCP.
const Version = "0.3.0"
