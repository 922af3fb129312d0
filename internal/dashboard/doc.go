// Package dashboard draws the monitor-mode telemetry screen.
//
// The 320x240 layout:
//
//	+--------------------------------------------+  0
//	| DESK's PC                  UP: 1d 05:30:59 |  header, 0..28
//	+--------------------------------------------+
//	|   CPU TEMP            CPU LOAD             |  labels at y=40
//	|   .-----.             [=======-------]     |
//	|  /  48°  \            37.5%                |
//	|  \       /            POWER                |  y=115
//	|   '-----'             35.2 W               |
//	+--------------------------------------------+ 190
//	| ~~~~ CPU usage, last 60 samples ~~~~~~~~~~ |  graph, 190..240
//	+--------------------------------------------+ 240
//
// The temperature ring is green, turning gold above 55°C and red above 75°C.
package dashboard
