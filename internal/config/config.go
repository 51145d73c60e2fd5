package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration values.
type Config struct {
	// Hardware backend: "periph" drives the real board, "sim" runs without it.
	HALBackend string

	// IMU
	I2CBus     string
	IMUI2CAddr uint16

	// Motors (GPIO names as understood by gpioreg, e.g. "GPIO16")
	LeftMotorEnablePin  string
	LeftMotorPin1       string
	LeftMotorPin2       string
	RightMotorEnablePin string
	RightMotorPin1      string
	RightMotorPin2      string
	PWMFrequencyHz      int

	// Encoders
	LeftEncoderPin1  string
	LeftEncoderPin2  string
	RightEncoderPin1 string
	RightEncoderPin2 string

	// Proximity sensor
	ProximityTriggerPin string
	ProximityEchoPin    string
	EchoTimeoutMS       int

	// Balance loop
	BalancePeriodMS  int
	DistanceSamples  int
	FilterFactor     float64
	EquilibriumAngle float64
	EquilibriumLimit float64
	ShutdownPitch    float64

	// Speed PID
	SpeedPIDKp     float64
	SpeedPIDKi     float64
	SpeedPIDKd     float64
	SpeedPIDMin    float64
	SpeedPIDMax    float64
	SpeedPIDWindup float64

	// Balance PID
	BalancePIDKp     float64
	BalancePIDKi     float64
	BalancePIDKd     float64
	BalancePIDMin    float64
	BalancePIDMax    float64
	BalancePIDWindup float64

	// Maneuvers
	BaseSpeedStep    float64
	TurnSpeedStep    float64
	TurnAngleStep    float64
	ObstacleDistance float64

	// Startup switches
	MotorsOnAtStart    bool
	AvoidanceOnAtStart bool
	Debug              bool

	// Calibration
	CalibrationFile string

	// MQTT; an empty broker disables telemetry publishing and MQTT commands
	MQTTBroker          string
	MQTTClientIDRobot   string
	MQTTClientIDConsole string
	TopicTelemetry      string
	TopicCommand        string
	TelemetryIntervalMS int

	// Serial command channel (Bluetooth RFCOMM device); empty disables it
	CommandSerialPort string
	CommandBaudRate   int

	// Web Server; 0 disables it
	WebServerPort int

	// Display (SSD1306 on the IMU bus)
	DisplayEnabled        bool
	DisplayI2CAddr        uint16
	DisplayUpdateInterval int // milliseconds
}

// Default returns the configuration used for every key the file omits.
func Default() *Config {
	return &Config{
		HALBackend: "periph",

		I2CBus:     "1",
		IMUI2CAddr: 0x68,

		LeftMotorEnablePin:  "GPIO16",
		LeftMotorPin1:       "GPIO20",
		LeftMotorPin2:       "GPIO21",
		RightMotorEnablePin: "GPIO13",
		RightMotorPin1:      "GPIO26",
		RightMotorPin2:      "GPIO19",
		PWMFrequencyHz:      20000,

		LeftEncoderPin1:  "GPIO22",
		LeftEncoderPin2:  "GPIO23",
		RightEncoderPin1: "GPIO18",
		RightEncoderPin2: "GPIO17",

		ProximityTriggerPin: "GPIO12",
		ProximityEchoPin:    "GPIO6",
		EchoTimeoutMS:       60,

		BalancePeriodMS:  5,
		DistanceSamples:  100,
		FilterFactor:     0.998,
		EquilibriumAngle: -2.5,
		EquilibriumLimit: 0.1,
		ShutdownPitch:    30,

		SpeedPIDKp:     0.020,
		SpeedPIDKi:     0.100,
		SpeedPIDKd:     0.000,
		SpeedPIDMin:    -170,
		SpeedPIDMax:    170,
		SpeedPIDWindup: 0.025,

		BalancePIDKp:     20.00,
		BalancePIDKi:     100.00,
		BalancePIDKd:     0.25,
		BalancePIDMin:    -100,
		BalancePIDMax:    100,
		BalancePIDWindup: 0.05,

		BaseSpeedStep:    85,
		TurnSpeedStep:    25,
		TurnAngleStep:    90,
		ObstacleDistance: 30,

		Debug: true,

		CalibrationFile: "setup.json",

		MQTTBroker:          "tcp://localhost:1883",
		MQTTClientIDRobot:   "balancer-robot",
		MQTTClientIDConsole: "balancer-console",
		TopicTelemetry:      "balancer/telemetry",
		TopicCommand:        "balancer/command",
		TelemetryIntervalMS: 100,

		CommandBaudRate: 9600,

		WebServerPort: 8080,

		DisplayI2CAddr:        0x3C,
		DisplayUpdateInterval: 250,
	}
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal/Get.
//   - configOnce: ensures InitGlobal() only runs once.
//   - configMu: write lock for initialization, read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file on top of Default().
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseInt(key, value string, dst *int) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = v
	return nil
}

func parseFloat(key, value string, dst *float64) error {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = v
	return nil
}

func parseBool(key, value string, dst *bool) error {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = v
	return nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	case "HAL_BACKEND":
		c.HALBackend = value

	// IMU
	case "I2C_BUS":
		c.I2CBus = value
	case "IMU_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid IMU_I2C_ADDR %q: %w", value, err)
		}
		c.IMUI2CAddr = uint16(addr)

	// Motors
	case "LEFT_MOTOR_ENABLE_PIN":
		c.LeftMotorEnablePin = value
	case "LEFT_MOTOR_PIN_1":
		c.LeftMotorPin1 = value
	case "LEFT_MOTOR_PIN_2":
		c.LeftMotorPin2 = value
	case "RIGHT_MOTOR_ENABLE_PIN":
		c.RightMotorEnablePin = value
	case "RIGHT_MOTOR_PIN_1":
		c.RightMotorPin1 = value
	case "RIGHT_MOTOR_PIN_2":
		c.RightMotorPin2 = value
	case "PWM_FREQUENCY_HZ":
		return parseInt(key, value, &c.PWMFrequencyHz)

	// Encoders
	case "LEFT_ENCODER_PIN_1":
		c.LeftEncoderPin1 = value
	case "LEFT_ENCODER_PIN_2":
		c.LeftEncoderPin2 = value
	case "RIGHT_ENCODER_PIN_1":
		c.RightEncoderPin1 = value
	case "RIGHT_ENCODER_PIN_2":
		c.RightEncoderPin2 = value

	// Proximity
	case "PROXIMITY_TRIGGER_PIN":
		c.ProximityTriggerPin = value
	case "PROXIMITY_ECHO_PIN":
		c.ProximityEchoPin = value
	case "ECHO_TIMEOUT_MS":
		return parseInt(key, value, &c.EchoTimeoutMS)

	// Balance loop
	case "BALANCE_PERIOD_MS":
		return parseInt(key, value, &c.BalancePeriodMS)
	case "DISTANCE_SAMPLES":
		return parseInt(key, value, &c.DistanceSamples)
	case "FILTER_FACTOR":
		if err := parseFloat(key, value, &c.FilterFactor); err != nil {
			return err
		}
		if c.FilterFactor < 0 || c.FilterFactor > 1 {
			return fmt.Errorf("FILTER_FACTOR must be within 0-1, got %v", c.FilterFactor)
		}
	case "EQUILIBRIUM_ANGLE":
		return parseFloat(key, value, &c.EquilibriumAngle)
	case "EQUILIBRIUM_LIMIT":
		return parseFloat(key, value, &c.EquilibriumLimit)
	case "SHUTDOWN_PITCH":
		return parseFloat(key, value, &c.ShutdownPitch)

	// Speed PID
	case "SPEED_PID_KP":
		return parseFloat(key, value, &c.SpeedPIDKp)
	case "SPEED_PID_KI":
		return parseFloat(key, value, &c.SpeedPIDKi)
	case "SPEED_PID_KD":
		return parseFloat(key, value, &c.SpeedPIDKd)
	case "SPEED_PID_MIN":
		return parseFloat(key, value, &c.SpeedPIDMin)
	case "SPEED_PID_MAX":
		return parseFloat(key, value, &c.SpeedPIDMax)
	case "SPEED_PID_WINDUP":
		return parseFloat(key, value, &c.SpeedPIDWindup)

	// Balance PID
	case "BALANCE_PID_KP":
		return parseFloat(key, value, &c.BalancePIDKp)
	case "BALANCE_PID_KI":
		return parseFloat(key, value, &c.BalancePIDKi)
	case "BALANCE_PID_KD":
		return parseFloat(key, value, &c.BalancePIDKd)
	case "BALANCE_PID_MIN":
		return parseFloat(key, value, &c.BalancePIDMin)
	case "BALANCE_PID_MAX":
		return parseFloat(key, value, &c.BalancePIDMax)
	case "BALANCE_PID_WINDUP":
		return parseFloat(key, value, &c.BalancePIDWindup)

	// Maneuvers
	case "BASE_SPEED_STEP":
		return parseFloat(key, value, &c.BaseSpeedStep)
	case "TURN_SPEED_STEP":
		return parseFloat(key, value, &c.TurnSpeedStep)
	case "TURN_ANGLE_STEP":
		return parseFloat(key, value, &c.TurnAngleStep)
	case "OBSTACLE_DISTANCE":
		return parseFloat(key, value, &c.ObstacleDistance)

	// Startup switches
	case "MOTORS_ON_AT_START":
		return parseBool(key, value, &c.MotorsOnAtStart)
	case "AVOIDANCE_ON_AT_START":
		return parseBool(key, value, &c.AvoidanceOnAtStart)
	case "DEBUG":
		return parseBool(key, value, &c.Debug)

	case "CALIBRATION_FILE":
		c.CalibrationFile = value

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_ROBOT":
		c.MQTTClientIDRobot = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "TOPIC_TELEMETRY":
		c.TopicTelemetry = value
	case "TOPIC_COMMAND":
		c.TopicCommand = value
	case "TELEMETRY_INTERVAL":
		return parseInt(key, value, &c.TelemetryIntervalMS)

	// Serial command channel
	case "COMMAND_SERIAL_PORT":
		c.CommandSerialPort = value
	case "COMMAND_BAUD_RATE":
		return parseInt(key, value, &c.CommandBaudRate)

	// Web Server
	case "WEB_SERVER_PORT":
		return parseInt(key, value, &c.WebServerPort)

	// Display
	case "DISPLAY_ENABLED":
		return parseBool(key, value, &c.DisplayEnabled)
	case "DISPLAY_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, err)
		}
		c.DisplayI2CAddr = uint16(addr)
	case "DISPLAY_UPDATE_INTERVAL":
		return parseInt(key, value, &c.DisplayUpdateInterval)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks the values the control loops cannot run without.
func (c *Config) validate() error {
	if c.HALBackend != "periph" && c.HALBackend != "sim" {
		return fmt.Errorf("HAL_BACKEND must be \"periph\" or \"sim\", got %q", c.HALBackend)
	}
	if c.BalancePeriodMS <= 0 {
		return fmt.Errorf("BALANCE_PERIOD_MS must be positive, got %d", c.BalancePeriodMS)
	}
	if c.DistanceSamples <= 0 {
		return fmt.Errorf("DISTANCE_SAMPLES must be positive, got %d", c.DistanceSamples)
	}
	if c.EchoTimeoutMS <= 0 {
		return fmt.Errorf("ECHO_TIMEOUT_MS must be positive, got %d", c.EchoTimeoutMS)
	}
	if c.PWMFrequencyHz <= 0 {
		return fmt.Errorf("PWM_FREQUENCY_HZ must be positive, got %d", c.PWMFrequencyHz)
	}
	if c.SpeedPIDMin >= c.SpeedPIDMax {
		return fmt.Errorf("SPEED_PID_MIN must be below SPEED_PID_MAX")
	}
	if c.BalancePIDMin >= c.BalancePIDMax {
		return fmt.Errorf("BALANCE_PID_MIN must be below BALANCE_PID_MAX")
	}
	if c.TelemetryIntervalMS <= 0 {
		return fmt.Errorf("TELEMETRY_INTERVAL is required")
	}
	if c.DisplayEnabled && c.DisplayUpdateInterval <= 0 {
		return fmt.Errorf("DISPLAY_UPDATE_INTERVAL must be positive")
	}
	if c.CommandSerialPort != "" && c.CommandBaudRate <= 0 {
		return fmt.Errorf("COMMAND_BAUD_RATE is required with COMMAND_SERIAL_PORT")
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
