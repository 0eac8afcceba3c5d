// Package registry holds the data model the discovery core reads from a
// service registry, the pull Client contract, and the factory table the
// backend packages (memory, consul, etcd) register themselves in.
//
// Instances and microservices are read-only once returned by a Client.
package registry
