package app_info

// NAME is the application name used for binaries, config and cache paths
const NAME = "hashwatch"

// VERSION is the current application version
const VERSION = "v0.1.0"
