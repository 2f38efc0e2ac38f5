// Package sim provides an in-memory room.Room for tests and demos.
//
// The simulated room records every Send in a delivery log, lets tests add
// and remove remote participants, and lets a participant enable streams
// whose frames are pushed by the test. It never touches the network.
package sim
