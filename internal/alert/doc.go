// Package alert turns device status and power events into e-mail
// notifications.
//
// Critical status transitions (OFFLINE, ERROR, DISCONNECTED) and power
// outages produce alerts; recoveries produce informational mails.
// Alerts are throttled per device so a flapping sensor cannot cause a
// mail storm.
package alert
