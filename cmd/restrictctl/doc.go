/*
Restrictctl is the operator CLI of the bgrestrict daemon.

	restrictctl levels [--uid N]
	restrictctl level <package> [--user N]
	restrictctl refresh [--uid N | --user N] [--reason main-sub] [--wait]
	restrictctl restrict <package> on|off
	restrictctl hibernate <package> on|off
	restrictctl bucket <package> <bucket>
	restrictctl watch [--uid N] [--count N]

Every command takes --server (default $BGRESTRICT_URL) and --json.
*/
package main
