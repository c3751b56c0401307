// Package influxdb exports the status history to InfluxDB v2.
//
// Every refresh cycle's snapshot becomes one point per value in the
// wolf_parameter measurement, tagged with the parameter's parent and name:
//
//	wolf_parameter,name=Pressure,parent=Boiler value=1.8 1760781600000000000
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteStatus(status)
//
// Writes are non-blocking and batched (batch_size, flush_interval); write
// errors are reported through SetOnError.
package influxdb
