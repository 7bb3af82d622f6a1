// Package discovery inventories GeoGraphix projects below a root directory
// and describes each one as a repo record: identity, connection parameters,
// well counts and filesystem statistics.
package discovery
